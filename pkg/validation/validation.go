package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	usernameRegex   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	programEndRegex = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

// ValidateUsername validates username format.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidatePassword validates a plaintext password before hashing.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	if len(password) > 128 {
		return fmt.Errorf("password is too long (max 128 characters)")
	}
	return nil
}

// ValidateProgramBoundary validates an HH:MM shift boundary.
func ValidateProgramBoundary(v string) error {
	if v == "" {
		return fmt.Errorf("program boundary is required")
	}
	if !programEndRegex.MatchString(strings.TrimSpace(v)) {
		return fmt.Errorf("program boundary must be HH:MM")
	}
	return nil
}

// ValidateCoordinates validates a lat/lng pair.
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude out of range: %f", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude out of range: %f", lng)
	}
	return nil
}
