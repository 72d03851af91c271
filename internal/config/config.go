package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         int
	LogDirectory string
	DatabasePath string

	// Detector selects the inference variant: "local" (DNN model files) or "remote".
	Detector            string
	ModelPath           string
	ConfigPath          string
	RemoteDetectorURL   string
	DetectionConfidence float64
	DetectionInterval   time.Duration // Pauza między cyklami detekcji
	DetectionBackoff    time.Duration

	MatchThreshold float64
	TrackTTL       time.Duration
	DwellDelay     time.Duration
	MaxRuntime     time.Duration // 0 = bez limitu
	MaxCaptures    int           // 0 = bez limitu

	ForwardURL     string
	ForwardTimeout time.Duration
	ForwardWorkers int
	ForwardQueue   int

	// CaptureDirectory keeps a local copy of every capture image; empty disables it.
	CaptureDirectory     string
	CaptureBufferLimit   int
	CaptureFlushInterval time.Duration

	DisplayWidth       int
	DisplayFPS         int
	JPEGQualityDisplay int
	JPEGQualityCapture int
	MaxProbeIndex      int
	FrameWait          time.Duration
	FramePollInterval  time.Duration
	FrameStaleness     time.Duration
	JoinTimeout        time.Duration
}

// Load reads the optional .env file and builds the configuration from the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Could not load .env file: %v", err)
	}

	return &Config{
		Port:         getEnvAsInt("PORT", 8080),
		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DatabasePath: getEnv("DB_PATH", filepath.Join(".", "data", "captures.db")),

		Detector:            getEnv("DETECTOR", "local"),
		ModelPath:           getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ConfigPath:          getEnv("CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		RemoteDetectorURL:   getEnv("REMOTE_DETECTOR_URL", ""),
		DetectionConfidence: getEnvAsFloat("DETECTION_CONFIDENCE", 0.5),
		DetectionInterval:   getEnvAsDuration("DETECTION_INTERVAL", 200*time.Millisecond), // ~5 Hz
		DetectionBackoff:    getEnvAsDuration("DETECTION_BACKOFF", 200*time.Millisecond),

		MatchThreshold: getEnvAsRatio("MATCH_THRESHOLD", 0.3),
		TrackTTL:       getEnvAsDuration("TRACK_TTL", 3*time.Second),
		DwellDelay:     getEnvAsDuration("DWELL_DELAY", 3*time.Second),
		MaxRuntime:     getEnvAsDuration("MAX_RUNTIME", 0),
		MaxCaptures:    getEnvAsInt("MAX_CAPTURES", 0),

		ForwardURL:     getEnv("FORWARD_URL", ""),
		ForwardTimeout: getEnvAsDuration("FORWARD_TIMEOUT", 3*time.Minute),
		ForwardWorkers: getEnvAsInt("FORWARD_WORKERS", 2),
		ForwardQueue:   getEnvAsInt("FORWARD_QUEUE", 16),

		CaptureDirectory:     getEnv("CAPTURE_DIR", ""),
		CaptureBufferLimit:   getEnvAsInt("CAPTURE_BUFFER_LIMIT", 32),
		CaptureFlushInterval: getEnvAsDuration("CAPTURE_FLUSH_INTERVAL", 10*time.Second),

		DisplayWidth:       getEnvAsInt("DISPLAY_WIDTH", 640),
		DisplayFPS:         getEnvAsInt("DISPLAY_FPS", 60),
		JPEGQualityDisplay: getEnvAsInt("JPEG_QUALITY_DISPLAY", 60),
		JPEGQualityCapture: getEnvAsInt("JPEG_QUALITY_CAPTURE", 90),
		MaxProbeIndex:      getEnvAsInt("MAX_PROBE_INDEX", 8),
		FrameWait:          getEnvAsDuration("FRAME_WAIT", 300*time.Millisecond),
		FramePollInterval:  getEnvAsDuration("FRAME_POLL_INTERVAL", 5*time.Millisecond),
		FrameStaleness:     getEnvAsDuration("FRAME_STALENESS", 500*time.Millisecond),
		JoinTimeout:        getEnvAsDuration("JOIN_TIMEOUT", time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsRatio reads a value in (0, 1]. Anything else is reported and the
// default is used.
func getEnvAsRatio(key string, defaultValue float64) float64 {
	value := getEnvAsFloat(key, defaultValue)
	if value <= 0 || value > 1 {
		log.Printf("%s=%v is outside (0, 1], using %v", key, value, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("250ms", "3s") or plain seconds ("3", "0.5").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}
