package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	//ErrValidation is returned when a report is missing required fields or carries out-of-range coordinates
	ErrValidation = errors.New("invalid location report")
	//ErrParse is returned when a report field can not be parsed
	ErrParse = errors.New("failed to parse location report")
)

//TheftMarker is the literal token a device appends to a delimited report when
//it believes it is being moved without authorization
const TheftMarker = "theft"

//LocationReport is one decrypted and validated position report from a device
type LocationReport struct {
	DeviceID  string
	Latitude  float64
	Longitude float64
	Timestamp time.Time
	IsTheft   bool
}

// The layouts devices are known to send. The simulator firmware uses the
// space-separated form without a zone, which is taken as UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

//Parse turns a decrypted payload into a LocationReport. Two wire shapes are
//supported: a JSON object with device_id/latitude/longitude/timestamp and an
//optional is_theft flag, or the delimited form
//"device_id,latitude,longitude,timestamp[,theft]" that the tracker firmware sends.
func Parse(plaintext string) (*LocationReport, error) {
	trimmed := strings.TrimSpace(plaintext)

	if strings.HasPrefix(trimmed, "{") {
		return parseJSON(trimmed)
	}

	return parseDelimited(trimmed)
}

func parseJSON(plaintext string) (*LocationReport, error) {
	var fields struct {
		DeviceID  string          `json:"device_id"`
		Latitude  json.RawMessage `json:"latitude"`
		Longitude json.RawMessage `json:"longitude"`
		Timestamp string          `json:"timestamp"`
		IsTheft   bool            `json:"is_theft"`
	}

	if err := json.Unmarshal([]byte(plaintext), &fields); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrParse, err.Error())
	}

	missing := []string{}
	if fields.DeviceID == "" {
		missing = append(missing, "device_id")
	}
	if len(fields.Latitude) == 0 {
		missing = append(missing, "latitude")
	}
	if len(fields.Longitude) == 0 {
		missing = append(missing, "longitude")
	}
	if fields.Timestamp == "" {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}

	latitude, err := parseCoordinate("latitude", fields.Latitude)
	if err != nil {
		return nil, err
	}

	longitude, err := parseCoordinate("longitude", fields.Longitude)
	if err != nil {
		return nil, err
	}

	timestamp, err := parseTimestamp(fields.Timestamp)
	if err != nil {
		return nil, err
	}

	return newReport(fields.DeviceID, latitude, longitude, timestamp, fields.IsTheft)
}

func parseDelimited(plaintext string) (*LocationReport, error) {
	parts := strings.Split(plaintext, ",")
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w: expected device_id,latitude,longitude,timestamp", ErrValidation)
	}

	fieldNames := []string{"device_id", "latitude", "longitude", "timestamp"}
	missing := []string{}

	for i, name := range fieldNames {
		if strings.TrimSpace(parts[i]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}

	latitude, err := parseFloat("latitude", strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, err
	}

	longitude, err := parseFloat("longitude", strings.TrimSpace(parts[2]))
	if err != nil {
		return nil, err
	}

	timestamp, err := parseTimestamp(strings.TrimSpace(parts[3]))
	if err != nil {
		return nil, err
	}

	isTheft := len(parts) > 4 && strings.TrimSpace(parts[4]) == TheftMarker

	return newReport(strings.TrimSpace(parts[0]), latitude, longitude, timestamp, isTheft)
}

func newReport(deviceID string, latitude, longitude float64, timestamp time.Time, isTheft bool) (*LocationReport, error) {
	if latitude < -90 || latitude > 90 {
		return nil, fmt.Errorf("%w: latitude %g is out of range [-90, 90]", ErrValidation, latitude)
	}

	if longitude < -180 || longitude > 180 {
		return nil, fmt.Errorf("%w: longitude %g is out of range [-180, 180]", ErrValidation, longitude)
	}

	return &LocationReport{
		DeviceID:  deviceID,
		Latitude:  latitude,
		Longitude: longitude,
		Timestamp: timestamp,
		IsTheft:   isTheft,
	}, nil
}

//parseCoordinate accepts a JSON number as well as a numeric string, since
//older firmware revisions send coordinates as strings
func parseCoordinate(name string, raw json.RawMessage) (float64, error) {
	value := strings.TrimSpace(string(raw))
	if strings.HasPrefix(value, "\"") {
		if err := json.Unmarshal(raw, &value); err != nil {
			return 0, fmt.Errorf("%w: %s is not a number", ErrParse, name)
		}
	}

	return parseFloat(name, value)
}

func parseFloat(name, value string) (float64, error) {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, fmt.Errorf("%w: %s is not a finite number", ErrParse, name)
	}

	return parsed, nil
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if timestamp, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return timestamp, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: timestamp %q is not in a supported format", ErrParse, value)
}
