package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Producer sources selectable with SOURCE.
const (
	SourceSynthetic = "synthetic"
	SourceSerial    = "serial"
	SourceMQTT      = "mqtt"
	SourceADC       = "adc"
	SourceNone      = "none"
)

type Config struct {
	AppEnv             string
	LogLevel           slog.Level
	HTTPAddr           string
	CORSAllowedOrigins []string

	Source         string
	DeviceMax      int
	WindowCapacity int
	SampleInterval time.Duration
	PollInterval   time.Duration

	GeneratorModel string
	GeneratorSeed  uint64

	ModeratePolicy string
	ModerateLo     int
	ModerateSpan   int

	FailureThreshold int
	ReconnectBackoff time.Duration
	ReconnectRetry   time.Duration

	SerialPort string
	SerialBaud int

	MQTTBroker       string
	MQTTPort         int
	MQTTClientID     string
	MQTTTopic        string
	MQTTPublishTopic string

	KafkaBrokers []string
	KafkaTopic   string

	ADCBus     string
	ADCAddress uint16
	ADCChannel int
	ADCVref    float64

	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	JournalRetention      int
}

// LoadDotEnv seeds the environment from path. Variables already set win.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func LoadFromEnv() (Config, error) {
	var cfg Config
	var err error

	cfg.AppEnv = envString("APP_ENV", "dev")
	switch cfg.AppEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", cfg.AppEnv)
	}

	if cfg.LogLevel, err = parseLogLevel(envString("LOG_LEVEL", "info")); err != nil {
		return Config{}, err
	}

	cfg.HTTPAddr = envString("HTTP_ADDR", ":5000")
	cfg.CORSAllowedOrigins = splitList(envString("CORS_ALLOWED_ORIGINS", "*"))

	cfg.Source = strings.ToLower(envString("SOURCE", SourceSynthetic))
	switch cfg.Source {
	case SourceSynthetic, SourceSerial, SourceMQTT, SourceADC, SourceNone:
	default:
		return Config{}, fmt.Errorf("invalid SOURCE %q (allowed: synthetic, serial, mqtt, adc, none)", cfg.Source)
	}

	if cfg.DeviceMax, err = envInt("DEVICE_MAX", 1023); err != nil {
		return Config{}, err
	}
	if cfg.DeviceMax <= 0 {
		return Config{}, fmt.Errorf("DEVICE_MAX must be positive, got %d", cfg.DeviceMax)
	}
	if cfg.WindowCapacity, err = envInt("WINDOW_CAPACITY", 15); err != nil {
		return Config{}, err
	}
	if cfg.WindowCapacity < 1 {
		return Config{}, fmt.Errorf("WINDOW_CAPACITY must be at least 1, got %d", cfg.WindowCapacity)
	}
	if cfg.SampleInterval, err = envPositiveDuration("SAMPLE_INTERVAL", "1s"); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = envPositiveDuration("POLL_INTERVAL", "100ms"); err != nil {
		return Config{}, err
	}

	cfg.GeneratorModel = strings.ToLower(envString("GENERATOR_MODEL", "diurnal"))
	switch cfg.GeneratorModel {
	case "diurnal", "constant":
	default:
		return Config{}, fmt.Errorf("invalid GENERATOR_MODEL %q (allowed: diurnal, constant)", cfg.GeneratorModel)
	}
	seedStr := envString("GENERATOR_SEED", "0")
	if cfg.GeneratorSeed, err = strconv.ParseUint(seedStr, 10, 64); err != nil {
		return Config{}, fmt.Errorf("invalid GENERATOR_SEED %q: %w", seedStr, err)
	}

	cfg.ModeratePolicy = strings.ToLower(envString("AQI_MODERATE_POLICY", "linear"))
	switch cfg.ModeratePolicy {
	case "fixed", "linear":
	default:
		return Config{}, fmt.Errorf("invalid AQI_MODERATE_POLICY %q (allowed: fixed, linear)", cfg.ModeratePolicy)
	}
	if cfg.ModerateLo, err = envInt("AQI_MODERATE_LO", 90); err != nil {
		return Config{}, err
	}
	if cfg.ModerateSpan, err = envInt("AQI_MODERATE_SPAN", 10); err != nil {
		return Config{}, err
	}
	if cfg.ModerateSpan < 0 {
		return Config{}, fmt.Errorf("AQI_MODERATE_SPAN must not be negative, got %d", cfg.ModerateSpan)
	}

	if cfg.FailureThreshold, err = envInt("FAILURE_THRESHOLD", 10); err != nil {
		return Config{}, err
	}
	if cfg.FailureThreshold < 1 {
		return Config{}, fmt.Errorf("FAILURE_THRESHOLD must be at least 1, got %d", cfg.FailureThreshold)
	}
	if cfg.ReconnectBackoff, err = envPositiveDuration("RECONNECT_BACKOFF", "2s"); err != nil {
		return Config{}, err
	}
	if cfg.ReconnectRetry, err = envPositiveDuration("RECONNECT_RETRY", "5s"); err != nil {
		return Config{}, err
	}

	cfg.SerialPort = envString("SERIAL_PORT", "")
	if cfg.SerialBaud, err = envInt("SERIAL_BAUD", 9600); err != nil {
		return Config{}, err
	}

	cfg.MQTTBroker = envString("MQTT_BROKER", "localhost")
	if cfg.MQTTPort, err = envInt("MQTT_PORT", 1883); err != nil {
		return Config{}, err
	}
	cfg.MQTTClientID = envString("MQTT_CLIENT_ID", "streetlight-server")
	cfg.MQTTTopic = envString("MQTT_TOPIC", "streetlight/mq")
	cfg.MQTTPublishTopic = envString("MQTT_PUBLISH_TOPIC", "")

	cfg.KafkaBrokers = splitList(envString("KAFKA_BROKERS", ""))
	cfg.KafkaTopic = envString("KAFKA_TOPIC", "streetlight.snapshots")

	cfg.ADCBus = envString("ADC_I2C_BUS", "")
	addrStr := envString("ADC_ADDRESS", "0x48")
	addr, err := strconv.ParseUint(addrStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid ADC_ADDRESS %q: %w", addrStr, err)
	}
	cfg.ADCAddress = uint16(addr)
	if cfg.ADCChannel, err = envInt("ADC_CHANNEL", 0); err != nil {
		return Config{}, err
	}
	if cfg.ADCChannel < 0 || cfg.ADCChannel > 3 {
		return Config{}, fmt.Errorf("ADC_CHANNEL must be 0-3, got %d", cfg.ADCChannel)
	}
	vrefStr := strings.TrimSuffix(strings.ToUpper(envString("ADC_VREF", "5V")), "V")
	if cfg.ADCVref, err = strconv.ParseFloat(vrefStr, 64); err != nil {
		return Config{}, fmt.Errorf("invalid ADC_VREF %q: %w", os.Getenv("ADC_VREF"), err)
	}
	if cfg.ADCVref <= 0 {
		return Config{}, fmt.Errorf("ADC_VREF must be positive, got %v", cfg.ADCVref)
	}

	cfg.SQLitePath = envString("SQLITE_PATH", "file:streetlight?mode=memory&cache=shared")
	if cfg.SQLiteMaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 1); err != nil {
		return Config{}, err
	}
	if cfg.SQLiteMaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", 1); err != nil {
		return Config{}, err
	}
	lifetimeStr := envString("DB_CONN_MAX_LIFETIME", "0s")
	if cfg.SQLiteConnMaxLifetime, err = time.ParseDuration(lifetimeStr); err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME %q: %w", lifetimeStr, err)
	}
	if cfg.JournalRetention, err = envInt("JOURNAL_RETENTION", 500); err != nil {
		return Config{}, err
	}
	if cfg.JournalRetention < 1 {
		return Config{}, fmt.Errorf("JOURNAL_RETENTION must be at least 1, got %d", cfg.JournalRetention)
	}

	return cfg, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func envPositiveDuration(key, def string) (time.Duration, error) {
	s := envString(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
