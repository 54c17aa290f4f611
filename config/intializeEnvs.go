package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	godotenv "github.com/joho/godotenv"
)

const (
	TriggerLambda = "lambda"
	TriggerAMQP   = "amqp"
)

type Config struct {
	TriggerSource string

	RabbitMqURL    string
	RabbitMqQueue  string
	StatusExchange string
	AmqpWorkers    int

	TargetWidth    int
	ResizedMarker  string
	JpegQuality    int
	MaxImageBytes  int64
	MaxImagePixels int64

	AwsRegion         string
	S3Endpoint        string
	S3UsePathStyle    bool
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Timeout         time.Duration

	LogLevel  string
	LogPretty bool
}

func NewConfig() *Config {
	return &Config{
		TriggerSource:  TriggerLambda,
		AmqpWorkers:    1,
		TargetWidth:    300,
		ResizedMarker:  "_resized",
		JpegQuality:    95,
		MaxImageBytes:  25 << 20,
		MaxImagePixels: 268402689,
		S3Timeout:      30 * time.Second,
		LogLevel:       "info",
	}
}

// loadEnvFiles overlays .env files chosen by APP_ENV onto the process environment.
// Missing files are not an error: Lambda injects everything through the environment.
func loadEnvFiles() {
	switch os.Getenv("APP_ENV") {
	case "dev", "":
		if err := godotenv.Overload(".env.dev"); err == nil {
			log.Println("Loaded .env.dev")
		} else if err := godotenv.Overload(".env"); err == nil {
			log.Println("Loaded .env")
		}
	default:
		fname := ".env." + os.Getenv("APP_ENV")
		if err := godotenv.Overload(fname); err == nil {
			log.Printf("Loaded %s", fname)
		} else if err := godotenv.Overload(".env"); err == nil {
			log.Println("Loaded .env")
		} else {
			log.Printf("No %s or .env found, using system environment variables", fname)
		}
	}
}

func InitializeEnvs() (*Config, error) {
	loadEnvFiles()
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	config := NewConfig()
	var err error

	if v := os.Getenv("TRIGGER_SOURCE"); v != "" {
		config.TriggerSource = strings.ToLower(strings.TrimSpace(v))
	}
	config.RabbitMqURL = os.Getenv("RABBITMQ_URL")
	config.RabbitMqQueue = os.Getenv("RABBITMQ_QUEUE")
	config.StatusExchange = os.Getenv("STATUS_EXCHANGE")
	if v := os.Getenv("RESIZED_MARKER"); v != "" {
		config.ResizedMarker = v
	}
	config.AwsRegion = os.Getenv("AWS_REGION")
	config.S3Endpoint = os.Getenv("S3_ENDPOINT")
	config.S3AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	config.S3SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}

	if config.AmqpWorkers, err = intEnv("AMQP_WORKERS", config.AmqpWorkers); err != nil {
		return nil, err
	}
	if config.TargetWidth, err = intEnv("TARGET_WIDTH", config.TargetWidth); err != nil {
		return nil, err
	}
	if config.JpegQuality, err = intEnv("JPEG_QUALITY", config.JpegQuality); err != nil {
		return nil, err
	}
	if v := os.Getenv("MAX_IMAGE_BYTES"); v != "" {
		if config.MaxImageBytes, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("MAX_IMAGE_BYTES must be an integer: %w", err)
		}
	}
	if v := os.Getenv("MAX_IMAGE_PIXELS"); v != "" {
		if config.MaxImagePixels, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil {
			return nil, fmt.Errorf("MAX_IMAGE_PIXELS must be an integer: %w", err)
		}
	}
	if v := os.Getenv("S3_TIMEOUT"); v != "" {
		if config.S3Timeout, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("S3_TIMEOUT must be a duration: %w", err)
		}
	}
	if config.S3UsePathStyle, err = boolEnv("S3_USE_PATH_STYLE"); err != nil {
		return nil, err
	}
	if config.LogPretty, err = boolEnv("LOG_PRETTY"); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	switch c.TriggerSource {
	case TriggerLambda:
	case TriggerAMQP:
		if c.RabbitMqURL == "" || c.RabbitMqQueue == "" {
			return fmt.Errorf("RABBITMQ_URL or RABBITMQ_QUEUE is missing")
		}
		if c.AmqpWorkers < 1 {
			return fmt.Errorf("AMQP_WORKERS must be at least 1, got %d", c.AmqpWorkers)
		}
	default:
		return fmt.Errorf("TRIGGER_SOURCE must be %q or %q, got %q", TriggerLambda, TriggerAMQP, c.TriggerSource)
	}

	if c.TargetWidth < 1 {
		return fmt.Errorf("TARGET_WIDTH must be positive, got %d", c.TargetWidth)
	}
	if c.ResizedMarker == "" {
		return fmt.Errorf("RESIZED_MARKER cannot be empty")
	}
	if c.JpegQuality < 1 || c.JpegQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100, got %d", c.JpegQuality)
	}
	if c.MaxImageBytes < 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES cannot be negative")
	}
	if c.MaxImagePixels < 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS cannot be negative")
	}
	if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
	}
	return nil
}

func intEnv(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return n, nil
}

func boolEnv(name string) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", name, err)
	}
	return b, nil
}
