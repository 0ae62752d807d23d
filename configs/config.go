package config

import (
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

var loadEnvOnce sync.Once

// Config returns the value of an environment variable, loading .env the first time.
func Config(key string) string {
	loadEnvOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: .env file not found, reading from system environment variables")
		}
	})

	return os.Getenv(key)
}

type Settings struct {
	Port        string
	AppEnv      string
	DatabaseURL string
	JWTSecret   string
	RedisURL    string
	CORSOrigins string
	LogLevel    string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	CloudinaryURL string

	FreeMessagingDefault bool
}

func Load() *Settings {
	return &Settings{
		Port:                 withDefault(Config("PORT"), "8080"),
		AppEnv:               withDefault(Config("APP_ENV"), "development"),
		DatabaseURL:          Config("DATABASE_URL"),
		JWTSecret:            Config("JWT_SECRET"),
		RedisURL:             Config("REDIS_URL"),
		CORSOrigins:          withDefault(Config("CORS_ORIGINS"), "*"),
		LogLevel:             withDefault(Config("LOG_LEVEL"), "info"),
		VAPIDPublicKey:       Config("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:      Config("VAPID_PRIVATE_KEY"),
		VAPIDSubject:         withDefault(Config("VAPID_SUBJECT"), "mailto:support@motion.app"),
		CloudinaryURL:        Config("CLOUDINARY_URL"),
		FreeMessagingDefault: parseBool(Config("FREE_MESSAGING_DEFAULT")),
	}
}

func (s *Settings) Development() bool {
	return s.AppEnv == "development"
}

// PushConfigured reports whether both VAPID keys are present.
func (s *Settings) PushConfigured() bool {
	return s.VAPIDPublicKey != "" && s.VAPIDPrivateKey != ""
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
