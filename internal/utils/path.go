package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ResizedKey derives the output key by inserting marker before the first ".".
// Keys without a "." get the marker appended so the output never lands on the source key.
func ResizedKey(key string, marker string) string {
	if !strings.Contains(key, ".") {
		return key + marker
	}
	return strings.Replace(key, ".", marker+".", 1)
}

// DecodeKey undoes the form encoding S3 applies to object keys in event notifications.
func DecodeKey(rawKey string) (string, error) {
	key, err := url.QueryUnescape(rawKey)
	if err != nil {
		return "", fmt.Errorf("failed to decode object key %q: %w", rawKey, err)
	}
	return key, nil
}
