package database

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/repositories/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	//ErrNotFound is returned when a device or location lookup matches nothing
	ErrNotFound = errors.New("not found")
	//ErrAlreadyRegistered is returned when a device id or contact email is already taken
	ErrAlreadyRegistered = errors.New("device is already registered")
)

//Datastore is an interface that is used to inject the database into different handlers to improve testability
type Datastore interface {
	RegisterDevice(deviceID string, email *string, passwordHash string) (*models.Device, error)
	GetDeviceByDeviceID(deviceID string) (*models.Device, error)
	GetDeviceByEmail(email string) (*models.Device, error)
	SetDeviceStolen(deviceID string) error

	AddLocation(deviceID string, latitude, longitude float64, timestamp time.Time, isTheft bool) (*models.Location, error)
	GetLatestLocation(deviceID string) (*models.Location, error)
	GetRecentLocations(deviceID string, limit int) ([]models.Location, error)
}

type myDB struct {
	impl *gorm.DB
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

//ConnectorFunc is used to inject a database connection method into NewDatabaseConnection
type ConnectorFunc func() (*gorm.DB, error)

//NewPostgreSQLConnector opens a connection to a postgresql database
func NewPostgreSQLConnector(log logging.Logger) ConnectorFunc {
	dbHost := os.Getenv("TRACKER_DB_HOST")
	username := os.Getenv("TRACKER_DB_USER")
	dbName := os.Getenv("TRACKER_DB_NAME")
	password := os.Getenv("TRACKER_DB_PASSWORD")
	sslMode := getEnv("TRACKER_DB_SSLMODE", "require")

	dbURI := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", dbHost, username, dbName, sslMode, password)

	return func() (*gorm.DB, error) {
		for {
			log.Infof("Connecting to database host %s ...", dbHost)
			db, err := gorm.Open(postgres.Open(dbURI), &gorm.Config{})
			if err != nil {
				log.Errorf("Failed to connect to database %s", err.Error())
				time.Sleep(3 * time.Second)
			} else {
				return db, nil
			}
		}
	}
}

//NewSQLiteConnector opens a connection to a local sqlite database
func NewSQLiteConnector() ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})

		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
		}

		return db, err
	}
}

//NewDatabaseConnection initializes a new connection to the database and wraps it in a Datastore
func NewDatabaseConnection(connect ConnectorFunc, log logging.Logger) (Datastore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	db := &myDB{
		impl: impl,
	}

	if err := db.impl.AutoMigrate(&models.Device{}, &models.Location{}); err != nil {
		log.Errorf("Failed to migrate database schema: %s", err.Error())
		return nil, err
	}

	return db, nil
}

func (db *myDB) RegisterDevice(deviceID string, email *string, passwordHash string) (*models.Device, error) {

	result := db.impl.Where("device_id = ?", deviceID).First(&models.Device{})
	if result.RowsAffected > 0 {
		return nil, fmt.Errorf("%w: device id %s is taken", ErrAlreadyRegistered, deviceID)
	}

	if email != nil {
		result = db.impl.Where("email = ?", *email).First(&models.Device{})
		if result.RowsAffected > 0 {
			return nil, fmt.Errorf("%w: email %s is taken", ErrAlreadyRegistered, *email)
		}
	}

	device := &models.Device{
		DeviceID:     deviceID,
		Email:        email,
		PasswordHash: passwordHash,
	}

	result = db.impl.Create(device)
	if result.Error != nil {
		return nil, result.Error
	}

	return device, nil
}

func (db *myDB) GetDeviceByDeviceID(deviceID string) (*models.Device, error) {
	device := &models.Device{}

	result := db.impl.Where("device_id = ?", deviceID).First(device)
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: no device matching %s", ErrNotFound, deviceID)
	}

	return device, nil
}

func (db *myDB) GetDeviceByEmail(email string) (*models.Device, error) {
	device := &models.Device{}

	result := db.impl.Where("email = ?", email).First(device)
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: no device matching %s", ErrNotFound, email)
	}

	return device, nil
}

//SetDeviceStolen flags the device as stolen. Setting the flag on an already
//flagged device is a no-op, not an error.
func (db *myDB) SetDeviceStolen(deviceID string) error {
	device, err := db.GetDeviceByDeviceID(deviceID)
	if err != nil {
		return err
	}

	if device.IsStolen {
		return nil
	}

	return db.impl.Model(device).Update("is_stolen", true).Error
}

func (db *myDB) AddLocation(deviceID string, latitude, longitude float64, timestamp time.Time, isTheft bool) (*models.Location, error) {
	location := &models.Location{
		DeviceID:  deviceID,
		Latitude:  latitude,
		Longitude: longitude,
		Timestamp: timestamp,
		IsTheft:   isTheft,
	}

	result := db.impl.Create(location)
	if result.Error != nil {
		return nil, result.Error
	}

	return location, nil
}

func (db *myDB) GetLatestLocation(deviceID string) (*models.Location, error) {
	location := &models.Location{}

	result := db.impl.Where("device_id = ?", deviceID).Order("timestamp desc").Limit(1).Find(location)
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: no location data for device %s", ErrNotFound, deviceID)
	}

	return location, nil
}

func (db *myDB) GetRecentLocations(deviceID string, limit int) ([]models.Location, error) {
	locations := []models.Location{}

	result := db.impl.Where("device_id = ?", deviceID).Order("timestamp desc").Limit(limit).Find(&locations)
	if result.Error != nil {
		return nil, result.Error
	}

	return locations, nil
}
