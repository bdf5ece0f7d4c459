package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/repositories/models"
)

var deviceCtxKey = &deviceContextKey{"device"}

type deviceContextKey struct {
	name string
}

// Middleware packs the authenticated device into context for the protected handlers
func Middleware(log logging.Logger, secret []byte, db database.Datastore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			device, err := Authenticate(r.Header.Get("Authorization"), secret, db)
			if err != nil {
				log.Warnf("Rejected request to %s: %s", r.URL.Path, err.Error())

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"status":  "error",
					"message": err.Error(),
				})
				return
			}

			r = r.WithContext(context.WithValue(r.Context(), deviceCtxKey, device))
			next.ServeHTTP(w, r)
		})
	}
}

//Authenticate verifies a bearer header and resolves it to the acting device
func Authenticate(bearerHeader string, secret []byte, db database.Datastore) (*models.Device, error) {
	if !strings.HasPrefix(bearerHeader, "Bearer ") {
		return nil, ErrNoCredentials
	}

	deviceID, err := DeviceIDFromToken(strings.TrimPrefix(bearerHeader, "Bearer "), secret)
	if err != nil {
		return nil, err
	}

	device, err := db.GetDeviceByDeviceID(deviceID)
	if err != nil {
		return nil, ErrUnknownSubject
	}

	return device, nil
}

//DeviceFromContext extracts the authenticated device, if any, from the provided context
func DeviceFromContext(ctx context.Context) (*models.Device, error) {
	device, ok := ctx.Value(deviceCtxKey).(*models.Device)
	if ok {
		return device, nil
	}

	return nil, ErrNoCredentials
}
