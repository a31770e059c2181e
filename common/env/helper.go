package env

import (
	"fmt"
	"os"
	"strconv"
)

// Bool returns the boolean value of the environment variable env,
// or defaultValue when env is unset or unparsable.
func Bool(env string, defaultValue bool) bool {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	return os.Getenv(env) == "true"
}

// Int returns the integer value of the environment variable env,
// or defaultValue when env is unset. Panics on unparsable input so
// misconfiguration is caught at startup rather than at first use.
func Int(env string, defaultValue int) int {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	num, err := strconv.Atoi(os.Getenv(env))
	if err != nil {
		panic(fmt.Sprintf("invalid value for %s: %q", env, os.Getenv(env)))
	}
	return num
}

// Float64 returns the float value of the environment variable env,
// or defaultValue when env is unset.
func Float64(env string, defaultValue float64) float64 {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	num, err := strconv.ParseFloat(os.Getenv(env), 64)
	if err != nil {
		panic(fmt.Sprintf("invalid value for %s: %q", env, os.Getenv(env)))
	}
	return num
}

// String returns the value of the environment variable env,
// or defaultValue when env is unset.
func String(env string, defaultValue string) string {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	return os.Getenv(env)
}
