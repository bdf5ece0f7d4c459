package prediction

import (
	"errors"
	"time"

	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/repositories/models"
)

var (
	//ErrInsufficientData is returned when a device has no stored locations to predict from
	ErrInsufficientData = errors.New("insufficient location data for prediction")
	//ErrInvalidTimeDelta is returned when the two most recent samples share a timestamp
	ErrInvalidTimeDelta = errors.New("zero time delta between location samples")
)

//Horizon is how far ahead of the most recent sample a prediction reaches
const Horizon = time.Hour

//Prediction is a forecast position assuming the constant angular velocity
//computed from the two most recent samples
type Prediction struct {
	Latitude   float64
	Longitude  float64
	Timestamp  time.Time
	Confidence float64

	//BasedOn echoes the samples the forecast was computed from, newest first
	BasedOn []models.Location
}

//Predict linearly extrapolates one hour past the most recent of the given
//samples, which must be ordered newest first. A single sample is returned
//unchanged at reduced confidence since no velocity can be computed.
func Predict(samples []models.Location) (*Prediction, error) {
	if len(samples) == 0 {
		return nil, ErrInsufficientData
	}

	latest := samples[0]

	if len(samples) == 1 {
		return &Prediction{
			Latitude:   latest.Latitude,
			Longitude:  latest.Longitude,
			Timestamp:  latest.Timestamp,
			Confidence: 0.5,
			BasedOn:    samples[:1],
		}, nil
	}

	previous := samples[1]

	elapsedHours := latest.Timestamp.Sub(previous.Timestamp).Hours()
	if elapsedHours == 0 {
		return nil, ErrInvalidTimeDelta
	}

	latVelocity := (latest.Latitude - previous.Latitude) / elapsedHours
	lonVelocity := (latest.Longitude - previous.Longitude) / elapsedHours

	horizonHours := Horizon.Hours()

	return &Prediction{
		Latitude:   latest.Latitude + latVelocity*horizonHours,
		Longitude:  latest.Longitude + lonVelocity*horizonHours,
		Timestamp:  latest.Timestamp.Add(Horizon),
		Confidence: 0.8,
		BasedOn:    samples[:2],
	}, nil
}
