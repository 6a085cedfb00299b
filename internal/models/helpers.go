package models

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Order number prefixes
const (
	LeadNumberPrefix  = "LEAD"
	OrderNumberPrefix = "ORD"
)

// GenerateID generates a new unique ID with the given prefix
func GenerateID(prefix string) string {
	id := uuid.New().String()

	return fmt.Sprintf("%s-%s", prefix, id[:8])
}

// GetCurrentTime returns the current time in UTC
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}

// FormatOrderNumber renders <prefix>-<year>-<4 digits>
func FormatOrderNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq%10000)
}

// RandomOrderNumber draws the 4-digit part from rng
func RandomOrderNumber(prefix string, now time.Time, rng *rand.Rand) string {
	return FormatOrderNumber(prefix, now.Year(), rng.Intn(10000))
}
