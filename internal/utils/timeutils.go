package utils

import (
	"fmt"
	"strings"
)

// BatchDate extracts the dated index component from a batch token of the form
// "2025.11.20_14" (date part plus hour suffix). Source and destination indices
// are sharded by the date part only.
func BatchDate(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("empty batch token")
	}
	date := token
	if idx := strings.IndexByte(token, '_'); idx >= 0 {
		date = token[:idx]
	}
	if date == "" {
		return "", fmt.Errorf("batch token %q has no date component", token)
	}
	return date, nil
}
