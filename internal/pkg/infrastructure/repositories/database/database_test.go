package database

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/logging"
)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

func TestRegisterDevice(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		device, err := db.RegisterDevice("dev1", nil, "hash")
		if err != nil {
			t.Error("RegisterDevice failed:", err.Error())
		}

		if device.DeviceID != "dev1" {
			t.Error("DeviceID should be dev1, but was " + device.DeviceID)
		}

		if device.IsStolen {
			t.Error("a newly registered device must not be flagged stolen")
		}
	}
}

func TestThatRegisteringTheSameDeviceIDTwiceFails(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		_, err := db.RegisterDevice("dev2", nil, "hash")
		if err != nil {
			t.Error("RegisterDevice failed:", err.Error())
		}

		_, err = db.RegisterDevice("dev2", nil, "otherhash")
		if !errors.Is(err, ErrAlreadyRegistered) {
			t.Error("expected ErrAlreadyRegistered, got", err)
		}
	}
}

func TestThatRegisteringATakenEmailFails(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		email := "owner@example.com"

		_, err := db.RegisterDevice("dev3", &email, "hash")
		if err != nil {
			t.Error("RegisterDevice failed:", err.Error())
		}

		_, err = db.RegisterDevice("dev4", &email, "hash")
		if !errors.Is(err, ErrAlreadyRegistered) {
			t.Error("expected ErrAlreadyRegistered, got", err)
		}
	}
}

func TestThatTwoDevicesMayBeRegisteredWithoutEmail(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		if _, err := db.RegisterDevice("dev5", nil, "hash"); err != nil {
			t.Error("RegisterDevice failed:", err.Error())
		}
		if _, err := db.RegisterDevice("dev6", nil, "hash"); err != nil {
			t.Error("RegisterDevice failed:", err.Error())
		}
	}
}

func TestGetDeviceByEmail(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		email := "lookup@example.com"

		_, err := db.RegisterDevice("dev7", &email, "hash")
		if err != nil {
			t.Error("RegisterDevice failed:", err.Error())
		}

		device, err := db.GetDeviceByEmail(email)
		if err != nil {
			t.Error("GetDeviceByEmail failed:", err.Error())
		} else if device.DeviceID != "dev7" {
			t.Error("DeviceID should be dev7, but was " + device.DeviceID)
		}
	}
}

func TestThatUnknownDeviceLookupsReturnNotFound(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		if _, err := db.GetDeviceByDeviceID("nosuchdevice"); !errors.Is(err, ErrNotFound) {
			t.Error("expected ErrNotFound, got", err)
		}

		if _, err := db.GetDeviceByEmail("nobody@example.com"); !errors.Is(err, ErrNotFound) {
			t.Error("expected ErrNotFound, got", err)
		}
	}
}

func TestSetDeviceStolenIsIdempotent(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		_, err := db.RegisterDevice("dev8", nil, "hash")
		if err != nil {
			t.Error("RegisterDevice failed:", err.Error())
		}

		for i := 0; i < 2; i++ {
			if err := db.SetDeviceStolen("dev8"); err != nil {
				t.Error("SetDeviceStolen failed:", err.Error())
			}
		}

		device, _ := db.GetDeviceByDeviceID("dev8")
		if !device.IsStolen {
			t.Error("device should be flagged stolen")
		}
	}
}

func TestThatFlaggingAnUnknownDeviceStolenFails(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		if err := db.SetDeviceStolen("nosuchdevice"); !errors.Is(err, ErrNotFound) {
			t.Error("expected ErrNotFound, got", err)
		}
	}
}

func TestAddAndGetLatestLocation(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		// inserted out of order on purpose
		for _, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
			_, err := db.AddLocation("dev9", 10+offset.Hours(), 20, base.Add(offset), false)
			if err != nil {
				t.Error("AddLocation failed:", err.Error())
			}
		}

		latest, err := db.GetLatestLocation("dev9")
		if err != nil {
			t.Error("GetLatestLocation failed:", err.Error())
		} else {
			if !latest.Timestamp.Equal(base.Add(2 * time.Hour)) {
				t.Error("GetLatestLocation returned the wrong sample:", latest.Timestamp)
			}
			if latest.Latitude != 12 {
				t.Error("GetLatestLocation returned the wrong latitude:", latest.Latitude)
			}
		}
	}
}

func TestThatGetLatestLocationReturnsNotFoundWithoutSamples(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		if _, err := db.GetLatestLocation("dev10"); !errors.Is(err, ErrNotFound) {
			t.Error("expected ErrNotFound, got", err)
		}
	}
}

func TestGetRecentLocationsOrderAndLimit(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		for hour := 0; hour < 3; hour++ {
			_, err := db.AddLocation("dev11", float64(hour), 0, base.Add(time.Duration(hour)*time.Hour), false)
			if err != nil {
				t.Error("AddLocation failed:", err.Error())
			}
		}

		locations, err := db.GetRecentLocations("dev11", 2)
		if err != nil {
			t.Error("GetRecentLocations failed:", err.Error())
		}

		if len(locations) != 2 {
			t.Error("expected 2 locations, got", len(locations))
		} else if !locations[0].Timestamp.After(locations[1].Timestamp) {
			t.Error("locations are not ordered newest first")
		}
	}
}

func newDatabaseForTest(t *testing.T) (Datastore, bool) {
	log := logging.NewLogger()
	db, err := NewDatabaseConnection(NewSQLiteConnector(), log)

	if err != nil {
		t.Error(err.Error())
		return nil, false
	}

	return db, true
}
