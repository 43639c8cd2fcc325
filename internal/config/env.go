package config

import (
	"os"
	"strconv"
)

// GetInt returns the integer value of the environment variable key, or def
// when it is unset or not a number.
func GetInt(key string, def int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func GetString(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}
