package utils

import "github.com/google/uuid"

// GenerateID returns a random UUIDv4 string.
func GenerateID() string {
	return uuid.NewString()
}
