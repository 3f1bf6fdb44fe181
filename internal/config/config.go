package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Stream sources.
const (
	SourceTwitter = "twitter"
	SourceKafka   = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	TwitterBearerToken string
	TwitterAPIURL      string
	StreamSource       string
	DedupCacheSize     int

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	VoiceTextURL  string
	BeepSoundFile string
	BeepPlayer    string

	PushGatewayURL      string
	PushGatewayUser     string
	PushGatewayPassword string
	PushGatewayJob      string
	MetricName          string

	HTTPAddr          string
	HTTPClientTimeout time.Duration
	LogLevel          string
	LogFormat         string
	ShutdownTimeout   time.Duration
}

// required lists the variables without which the relay cannot run, in the
// order they are reported.
var required = []string{
	"TWITTER_BEARER_TOKEN",
	"GH_VOICETEXT_API_ENDPOINT_URL",
	"BEEP_SOUND_FILE",
	"PUSH_GATEWAY_API_ENDPOINT_URL",
	"PUSH_GATEWAY_API_ENDPOINT_USER",
	"PUSH_GATEWAY_API_ENDPOINT_PASSWORD",
}

// Load reads configuration from environment variables, applying defaults where unset.
// Every missing required variable is reported in the returned error.
func Load() (*Config, error) {
	var errs []error
	for _, key := range required {
		if os.Getenv(key) == "" {
			errs = append(errs, fmt.Errorf("%q is not set", key))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	clientTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("HTTP_CLIENT_TIMEOUT", "10s"))
	if err != nil || clientTimeout <= 0 {
		return nil, errors.New("invalid HTTP_CLIENT_TIMEOUT")
	}

	dedupSize, err := strconv.Atoi(sharedcfg.EnvOrDefault("DEDUP_CACHE_SIZE", "1000"))
	if err != nil || dedupSize <= 0 {
		return nil, errors.New("invalid DEDUP_CACHE_SIZE")
	}

	cfg := &Config{
		TwitterBearerToken: os.Getenv("TWITTER_BEARER_TOKEN"),
		TwitterAPIURL:      sharedcfg.EnvOrDefault("TWITTER_API_URL", "https://api.twitter.com"),
		StreamSource:       sharedcfg.EnvOrDefault("STREAM_SOURCE", SourceTwitter),
		DedupCacheSize:     dedupSize,

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "earthquake-tweets"),
		KafkaGroupID: sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "earthquake-notify"),

		VoiceTextURL:  os.Getenv("GH_VOICETEXT_API_ENDPOINT_URL"),
		BeepSoundFile: os.Getenv("BEEP_SOUND_FILE"),
		BeepPlayer:    os.Getenv("BEEP_PLAYER"),

		PushGatewayURL:      os.Getenv("PUSH_GATEWAY_API_ENDPOINT_URL"),
		PushGatewayUser:     os.Getenv("PUSH_GATEWAY_API_ENDPOINT_USER"),
		PushGatewayPassword: os.Getenv("PUSH_GATEWAY_API_ENDPOINT_PASSWORD"),
		PushGatewayJob:      sharedcfg.EnvOrDefault("PUSH_GATEWAY_JOB", "twitter_earthquake_notify"),
		MetricName:          sharedcfg.EnvOrDefault("METRIC_NAME", "twitter_earthquake_notifications"),

		HTTPAddr:          sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		HTTPClientTimeout: clientTimeout,
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
	}

	switch cfg.StreamSource {
	case SourceTwitter:
	case SourceKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when STREAM_SOURCE is kafka")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required when STREAM_SOURCE is kafka")
		}
	default:
		return nil, fmt.Errorf("invalid STREAM_SOURCE %q: want %q or %q", cfg.StreamSource, SourceTwitter, SourceKafka)
	}

	return cfg, nil
}
