package util

import (
	"math/big"
	"os"
	"strconv"
	"time"
)

// GetEnv returns the value of the environment variable or the provided default.
func GetEnv(key string, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// GetEnvAsInt returns the environment variable parsed as int or the provided default.
func GetEnvAsInt(key string, defaultVal int) int {
	strVal, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}

	val, err := strconv.Atoi(strVal)
	if err != nil {
		return defaultVal
	}
	return val
}

// GetEnvAsBool returns the environment variable parsed as bool or the provided default.
func GetEnvAsBool(key string, defaultVal bool) bool {
	strVal, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}

	val, err := strconv.ParseBool(strVal)
	if err != nil {
		return defaultVal
	}
	return val
}

// GetEnvAsDuration returns the environment variable parsed via time.ParseDuration
// or the provided default.
func GetEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	strVal, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}

	val, err := time.ParseDuration(strVal)
	if err != nil {
		return defaultVal
	}
	return val
}

// GetEnvAsBigInt returns the environment variable parsed as a base-10 big.Int
// or a copy of the provided default.
func GetEnvAsBigInt(key string, defaultVal *big.Int) *big.Int {
	strVal, ok := os.LookupEnv(key)
	if !ok {
		return new(big.Int).Set(defaultVal)
	}

	val, ok := new(big.Int).SetString(strVal, 10)
	if !ok {
		return new(big.Int).Set(defaultVal)
	}
	return val
}
