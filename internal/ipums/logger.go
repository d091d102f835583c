package ipums

import (
	"log"
	"time"
)

// logRequest logs an API request being made.
func logRequest(method, path string) {
	log.Printf("[ipums] %s %s", method, path)
}

// logResponse logs an API response received.
func logResponse(status int, duration time.Duration) {
	log.Printf("[ipums] response status=%d duration=%dms", status, duration.Milliseconds())
}

// logError logs an error from an API operation.
func logError(operation string, err error) {
	log.Printf("[ipums] %s error: %v", operation, err)
}
