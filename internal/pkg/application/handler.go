package application

import (
	"compress/flate"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/auth"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/crypto"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/repositories/models"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/prediction"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/report"

	"github.com/rs/cors"
)

type RequestRouter struct {
	impl *chi.Mux
}

//Get accepts a pattern that should be routed to the handlerFn on a GET request
func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

//Post accepts a pattern that should be routed to the handlerFn on a POST request
func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	// Enable gzip compression for json responses
	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json")
	router.impl.Use(compressor.Handler)
	router.impl.Use(middleware.Logger)

	return router
}

func (router *RequestRouter) addTrackerHandlers(api *trackerAPI, authenticate func(http.Handler) http.Handler) {
	router.Post("/register", api.register)
	router.Post("/login", api.login)
	router.Get("/check-stolen/{deviceID}", api.checkStolen)

	router.impl.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Post("/update", api.update)
		r.Get("/latest", api.latest)
		r.Get("/predict", api.predict)
		r.Post("/report-stolen", api.reportStolen)
	})
}

func createRequestRouter(log logging.Logger, cfg *config.Config, codec *crypto.Codec, db database.Datastore) *RequestRouter {
	router := newRequestRouter()

	api := &trackerAPI{
		log:   log,
		db:    db,
		codec: codec,
		cfg:   cfg,
	}

	router.addTrackerHandlers(api, auth.Middleware(log, []byte(cfg.SecretKey), db))

	return router
}

//CreateRouterAndStartServing sets up the tracker api router and starts serving incoming requests
func CreateRouterAndStartServing(log logging.Logger, cfg *config.Config, codec *crypto.Codec, db database.Datastore) {
	router := createRequestRouter(log, cfg, codec, db)

	log.Infof("Starting iot-device-tracker on port %s.", cfg.ServicePort)
	log.Fatal(http.ListenAndServe(":"+cfg.ServicePort, router.impl))
}

type trackerAPI struct {
	log   logging.Logger
	db    database.Datastore
	codec *crypto.Codec
	cfg   *config.Config
}

type registrationRequest struct {
	DeviceID string `json:"device_id"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (api *trackerAPI) register(w http.ResponseWriter, r *http.Request) {
	req := registrationRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request body")
		return
	}

	if req.DeviceID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "device_id and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		api.log.Errorf("Failed to hash password: %s", err.Error())
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	var email *string
	if req.Email != "" {
		email = &req.Email
	}

	device, err := api.db.RegisterDevice(req.DeviceID, email, hash)
	if err != nil {
		if errors.Is(err, database.ErrAlreadyRegistered) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			api.log.Errorf("Failed to register device %s: %s", req.DeviceID, err.Error())
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	api.log.Infof("Registered device %s", device.DeviceID)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":    "success",
		"device_id": device.DeviceID,
	})
}

type loginRequest struct {
	DeviceID string `json:"device_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (api *trackerAPI) login(w http.ResponseWriter, r *http.Request) {
	req := loginRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request body")
		return
	}

	device, err := api.lookupLoginDevice(&req)

	// a uniform rejection for unknown devices and wrong passwords, so that
	// login can not be used to probe which device ids exist
	if err != nil || !auth.CheckPassword(device.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}

	token, err := auth.GenerateToken(device.DeviceID, []byte(api.cfg.SecretKey), api.cfg.TokenLifetime)
	if err != nil {
		api.log.Errorf("Failed to sign token for device %s: %s", device.DeviceID, err.Error())
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"token":     token,
		"device_id": device.DeviceID,
		"is_stolen": device.IsStolen,
	})
}

func (api *trackerAPI) lookupLoginDevice(req *loginRequest) (*models.Device, error) {
	if req.DeviceID != "" {
		return api.db.GetDeviceByDeviceID(req.DeviceID)
	}

	if req.Email != "" {
		return api.db.GetDeviceByEmail(req.Email)
	}

	return nil, auth.ErrInvalidCredentials
}

type updateRequest struct {
	Data string `json:"data"`
}

//update is the encrypted report pipeline: decrypt the submitted payload, parse
//it, check that it belongs to the authenticated device and persist it
func (api *trackerAPI) update(w http.ResponseWriter, r *http.Request) {
	device, err := auth.DeviceFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	req := updateRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request body")
		return
	}

	if req.Data == "" {
		writeError(w, http.StatusBadRequest, "missing encrypted data")
		return
	}

	plaintext, err := api.codec.Decrypt(req.Data)
	if err != nil {
		api.log.Warnf("Rejected update from device %s: %s", device.DeviceID, err.Error())
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	parsed, err := report.Parse(plaintext)
	if err != nil {
		api.log.Warnf("Rejected update from device %s: %s", device.DeviceID, err.Error())
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// an authenticated device may only append to its own history
	if parsed.DeviceID != device.DeviceID {
		api.log.Warnf("Device mismatch: report for %s submitted by %s", parsed.DeviceID, device.DeviceID)
		writeError(w, http.StatusForbidden, "device id mismatch")
		return
	}

	if _, err := api.db.AddLocation(parsed.DeviceID, parsed.Latitude, parsed.Longitude, parsed.Timestamp, parsed.IsTheft); err != nil {
		api.log.Errorf("Failed to store location for device %s: %s", device.DeviceID, err.Error())
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
	})
}

func (api *trackerAPI) latest(w http.ResponseWriter, r *http.Request) {
	device, err := auth.DeviceFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	location, err := api.db.GetLatestLocation(device.DeviceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no location data available")
		} else {
			api.log.Errorf("Failed to load latest location for device %s: %s", device.DeviceID, err.Error())
			writeError(w, http.StatusInternalServerError, "failed to load location data")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"device_id": location.DeviceID,
		"latitude":  location.Latitude,
		"longitude": location.Longitude,
		"timestamp": location.Timestamp.UTC().Format(time.RFC3339),
		"is_theft":  location.IsTheft,
	})
}

func (api *trackerAPI) predict(w http.ResponseWriter, r *http.Request) {
	device, err := auth.DeviceFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	samples, err := api.db.GetRecentLocations(device.DeviceID, 2)
	if err != nil {
		api.log.Errorf("Failed to load locations for device %s: %s", device.DeviceID, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load location data")
		return
	}

	predicted, err := prediction.Predict(samples)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	basedOn := make([]map[string]interface{}, 0, len(predicted.BasedOn))
	for _, sample := range predicted.BasedOn {
		basedOn = append(basedOn, map[string]interface{}{
			"latitude":  sample.Latitude,
			"longitude": sample.Longitude,
			"timestamp": sample.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"device_id": device.DeviceID,
		"predicted": map[string]interface{}{
			"latitude":  predicted.Latitude,
			"longitude": predicted.Longitude,
			"timestamp": predicted.Timestamp.UTC().Format(time.RFC3339),
		},
		"confidence": predicted.Confidence,
		"based_on":   basedOn,
	})
}

func (api *trackerAPI) reportStolen(w http.ResponseWriter, r *http.Request) {
	device, err := auth.DeviceFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if err := api.db.SetDeviceStolen(device.DeviceID); err != nil {
		api.log.Errorf("Failed to flag device %s as stolen: %s", device.DeviceID, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to flag device as stolen")
		return
	}

	api.log.Infof("Device %s was reported stolen", device.DeviceID)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"device_id": device.DeviceID,
		"is_stolen": true,
	})
}

//checkStolen is public so that anyone coming across a device can check it.
//Unknown device ids report not_stolen instead of an error to avoid leaking
//which ids are registered.
func (api *trackerAPI) checkStolen(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	status := "not_stolen"
	if device, err := api.db.GetDeviceByDeviceID(deviceID); err == nil && device.IsStolen {
		status = "stolen"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"device_id": deviceID,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}
