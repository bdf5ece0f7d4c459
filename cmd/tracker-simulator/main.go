package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/crypto"
	"github.com/iot-for-tillgenglighet/iot-device-tracker/internal/pkg/infrastructure/logging"
)

//tracker-simulator plays the role of a deployed tracking unit: it generates
//random GPS pings, encrypts them with the shared transport key and submits
//them to the /update endpoint, with a little jitter standing in for the relay
//hops of a real crowd network.
func main() {
	serverURL := flag.String("server", "http://localhost:8880", "base URL of the tracker service")
	deviceID := flag.String("device", "", "device id to report as")
	token := flag.String("token", "", "bearer token for the device")
	count := flag.Int("count", 10, "number of pings to send")
	interval := flag.Duration("interval", 5*time.Second, "base delay between pings")
	theft := flag.Bool("theft", false, "mark the pings with the theft flag")
	flag.Parse()

	log := logging.NewLogger()

	if *deviceID == "" || *token == "" {
		log.Fatal("both -device and -token are required")
	}

	codec, err := crypto.NewCodec(os.Getenv("TRACKER_ENCRYPTION_KEY"))
	if err != nil {
		log.Fatalf("Failed to initialize the transport codec: %s", err.Error())
	}

	runID := uuid.NewString()
	log.Infof("Simulator run %s: sending %d pings for device %s", runID, *count, *deviceID)

	for i := 0; i < *count; i++ {
		if err := sendPing(*serverURL, *deviceID, *token, *theft, codec); err != nil {
			log.Errorf("Ping %d failed: %s", i+1, err.Error())
		} else {
			log.Infof("Ping %d relayed for device %s", i+1, *deviceID)
		}

		// relay jitter
		time.Sleep(*interval + time.Duration(rand.Int63n(int64(time.Second))))
	}
}

func sendPing(serverURL, deviceID, token string, theft bool, codec *crypto.Codec) error {
	latitude := rand.Float64()*180 - 90
	longitude := rand.Float64()*360 - 180
	timestamp := time.Now().UTC().Format("2006-01-02 15:04:05")

	payload := fmt.Sprintf("%s,%f,%f,%s", deviceID, latitude, longitude, timestamp)
	if theft {
		payload += ",theft"
	}

	opaque, err := codec.Encrypt(payload)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"data": opaque})
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", serverURL+"/update", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server responded with status %d", resp.StatusCode)
	}

	return nil
}
