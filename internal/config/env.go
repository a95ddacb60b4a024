package config

import (
	"os"
	"strconv"
	"strings"
)

var boolWords = map[string]bool{
	"1": true, "true": true, "yes": true, "on": true, "y": true,
	"0": false, "false": false, "no": false, "off": false, "n": false,
}

// ParseBoolString reads common yes/no spellings; anything else is fallback.
func ParseBoolString(raw string, fallback bool) bool {
	if v, ok := boolWords[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return v
	}
	return fallback
}

// ParseIntEnv reads an integer environment variable, returning fallback when
// it is unset or malformed.
func ParseIntEnv(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}
