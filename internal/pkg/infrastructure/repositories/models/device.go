package models

import (
	"time"

	"gorm.io/gorm"
)

//Device is the database model for a registered tracking unit. The plaintext
//password is never stored, only its bcrypt hash. Devices are never deleted;
//IsStolen is the only field that changes after registration.
type Device struct {
	gorm.Model
	DeviceID string `gorm:"unique"`
	//Email is the optional owner contact; nullable so that devices registered
	//without one do not collide on the unique index
	Email        *string `gorm:"unique"`
	PasswordHash string
	IsStolen     bool `gorm:"default:false"`
}

//Location stores one observed position for a device. Rows are immutable once
//written; the most recent timestamp per device is the current location.
type Location struct {
	gorm.Model
	DeviceID  string    `gorm:"index:idx_device_time,priority:1"`
	Latitude  float64   `gorm:"not null"`
	Longitude float64   `gorm:"not null"`
	Timestamp time.Time `gorm:"index:idx_device_time,priority:2"`
	IsTheft   bool      `gorm:"default:false"`
}
