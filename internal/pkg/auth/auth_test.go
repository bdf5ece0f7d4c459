package auth

import (
	"fmt"
	"testing"
	"time"

	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/repositories/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("unit-test-signing-secret")

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("dev1", testSecret, time.Hour)
	require.NoError(t, err)

	deviceID, err := DeviceIDFromToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "dev1", deviceID)
}

func TestThatTwoTokensForTheSameDeviceDiffer(t *testing.T) {
	first, err := GenerateToken("dev1", testSecret, time.Hour)
	require.NoError(t, err)
	second, err := GenerateToken("dev1", testSecret, time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestThatAnExpiredTokenIsRejected(t *testing.T) {
	token, err := GenerateToken("dev1", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = DeviceIDFromToken(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestThatATokenSignedWithAnotherSecretIsRejected(t *testing.T) {
	token, err := GenerateToken("dev1", []byte("some other secret"), time.Hour)
	require.NoError(t, err)

	_, err = DeviceIDFromToken(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestThatGarbageTokensAreRejected(t *testing.T) {
	_, err := DeviceIDFromToken("not.a.token", testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	assert.NotEqual(t, "correct horse battery staple", hash)
	assert.True(t, CheckPassword(hash, "correct horse battery staple"))
	assert.False(t, CheckPassword(hash, "wrong password"))
}

func TestAuthenticate(t *testing.T) {
	db := &deviceStoreMock{devices: map[string]*models.Device{
		"dev1": {DeviceID: "dev1"},
	}}

	token, err := GenerateToken("dev1", testSecret, time.Hour)
	require.NoError(t, err)

	device, err := Authenticate("Bearer "+token, testSecret, db)
	require.NoError(t, err)
	assert.Equal(t, "dev1", device.DeviceID)
}

func TestThatAuthenticateRequiresABearerHeader(t *testing.T) {
	db := &deviceStoreMock{}

	for _, header := range []string{"", "Basic abc123", "bearer lowercase"} {
		_, err := Authenticate(header, testSecret, db)
		assert.ErrorIs(t, err, ErrNoCredentials, header)
	}
}

func TestThatAuthenticateRejectsUnknownSubjects(t *testing.T) {
	db := &deviceStoreMock{}

	token, err := GenerateToken("ghost", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = Authenticate("Bearer "+token, testSecret, db)
	assert.ErrorIs(t, err, ErrUnknownSubject)
}

type deviceStoreMock struct {
	devices map[string]*models.Device
}

func (db *deviceStoreMock) RegisterDevice(deviceID string, email *string, passwordHash string) (*models.Device, error) {
	return nil, nil
}

func (db *deviceStoreMock) GetDeviceByDeviceID(deviceID string) (*models.Device, error) {
	if device, ok := db.devices[deviceID]; ok {
		return device, nil
	}
	return nil, fmt.Errorf("no device matching %s", deviceID)
}

func (db *deviceStoreMock) GetDeviceByEmail(email string) (*models.Device, error) {
	return nil, fmt.Errorf("no device matching %s", email)
}

func (db *deviceStoreMock) SetDeviceStolen(deviceID string) error { return nil }

func (db *deviceStoreMock) AddLocation(deviceID string, latitude, longitude float64, timestamp time.Time, isTheft bool) (*models.Location, error) {
	return nil, nil
}

func (db *deviceStoreMock) GetLatestLocation(deviceID string) (*models.Location, error) {
	return nil, nil
}

func (db *deviceStoreMock) GetRecentLocations(deviceID string, limit int) ([]models.Location, error) {
	return nil, nil
}
