package main

import (
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/application"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/crypto"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/logging"
)

func main() {

	serviceName := "iot-device-tracker"

	log := logging.NewLogger()
	log.Infof("Starting up %s ...", serviceName)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %s", err.Error())
	}

	codec, err := crypto.NewCodec(cfg.EncryptionSecret)
	if err != nil {
		log.Fatalf("Failed to initialize the transport codec: %s", err.Error())
	}

	db, err := database.NewDatabaseConnection(database.NewPostgreSQLConnector(log), log)
	if err != nil {
		log.Fatalf("Failed to connect to the database: %s", err.Error())
	}

	application.CreateRouterAndStartServing(log, cfg, codec, db)
}
