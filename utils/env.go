package utils

import (
	"os"
	"slices"
	"strconv"
)

// EnvTrueValues contains strings that we interpret as boolean true in env vars.
var EnvTrueValues = []string{"true", "yes", "1", "TRUE", "YES"}

// GetenvInt returns the integer stored in the environment variable name, or def if it is unset or unparseable.
func GetenvInt(name string, def int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// GetenvBool reports whether the environment variable name holds one of EnvTrueValues, or def if it is unset.
func GetenvBool(name string, def bool) bool {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	return slices.Contains(EnvTrueValues, s)
}
