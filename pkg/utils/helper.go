package utils

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

// ParseInt converts string to int with default value
func ParseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}

	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	if result < 1 {
		return defaultValue
	}

	return result
}

// GenerateReference creates a human readable reference such as
// BKG-20260317-142501-0042.
func GenerateReference(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s-%04d", prefix, now.Format("20060102"), now.Format("150405"), rand.Intn(10000))
}
