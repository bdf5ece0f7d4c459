package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	//ErrNoCredentials is returned when a request carries no bearer credential of the expected shape
	ErrNoCredentials = errors.New("authorization header is missing or malformed")
	//ErrInvalidToken is returned when a bearer token fails signature or expiry checks
	ErrInvalidToken = errors.New("token is invalid")
	//ErrUnknownSubject is returned when a valid token does not resolve to a registered device
	ErrUnknownSubject = errors.New("token subject is not a registered device")
	//ErrInvalidCredentials is returned on login failure, without distinguishing
	//an unknown device from a wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")
)

//Claims binds a token to the device it was issued for
type Claims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"device_id"`
}

//GenerateToken issues a signed bearer token for the given device id
func GenerateToken(deviceID string, secret []byte, lifetime time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		DeviceID: deviceID,
	})

	return token.SignedString(secret)
}

//DeviceIDFromToken verifies the token signature and expiry and returns the
//device id it was issued for
func DeviceIDFromToken(tokenString string, secret []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid || claims.DeviceID == "" {
		return "", ErrInvalidToken
	}

	return claims.DeviceID, nil
}

//HashPassword hashes a plaintext password for storage
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

//CheckPassword compares a password attempt against the stored hash
func CheckPassword(hash, attempt string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(attempt)) == nil
}
