package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	JWTSecret  string
	UploadURL  string
	UploadKey  string
}

func Load() *Config {
	// Missing .env is fine; env vars and defaults take over.
	_ = godotenv.Load()

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "campussync"),
		DBPassword: getEnv("DB_PASSWORD", "campussync_dev_password"),
		DBName:     getEnv("DB_NAME", "campussync"),
		JWTSecret:  getEnv("JWT_SECRET", "dev-secret-change-me"),
		UploadURL:  getEnv("UPLOAD_URL", ""),
		UploadKey:  getEnv("UPLOAD_KEY", ""),
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}
