package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Payload size limits (in bytes)
const (
	MaxStatePayload = 4 * 1024 * 1024 // networks/clients lists can be large after a long scan
	MaxSourceLength = 2048
)

// String length limits
const (
	MaxNodeIDLength = 64
	MaxKeyLength    = 64
)

// ErrInvalidInput is wrapped by every validation failure
var ErrInvalidInput = errors.New("invalid input")

var (
	// NodeIDPattern allows alphanumeric, hyphens, underscores and dots
	NodeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	// SourceSchemePattern restricts pipeline sources to network stream schemes
	SourceSchemePattern = regexp.MustCompile(`^(rtsp|rtsps|rtmp|http|https|udp|tcp|srt)://`)
)

// JSONSizeValidator validates JSON size limits
type JSONSizeValidator struct {
	maxSize int
}

// NewJSONSizeValidator creates a new validator with the specified max size
func NewJSONSizeValidator(maxSize int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize}
}

// StateValidator returns a validator sized for state payloads
func StateValidator() *JSONSizeValidator {
	return NewJSONSizeValidator(MaxStatePayload)
}

// ValidateSize checks if the data size is within limits
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	if size := len(data); size > v.maxSize {
		return fmt.Errorf("%w: JSON size %d bytes exceeds maximum %d bytes", ErrInvalidInput, size, v.maxSize)
	}
	return nil
}

// ValidateJSON validates both size and JSON structure
func (v *JSONSizeValidator) ValidateJSON(data []byte) error {
	if err := v.ValidateSize(data); err != nil {
		return err
	}
	if !sonic.Valid(data) {
		return fmt.Errorf("%w: invalid JSON", ErrInvalidInput)
	}
	return nil
}

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%w: %s must be at least %d characters", ErrInvalidInput, fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%w: %s must not exceed %d characters", ErrInvalidInput, fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%w: %s contains invalid characters", ErrInvalidInput, fieldName)
	}

	return nil
}

// ValidateNodeID validates a node identifier
func ValidateNodeID(nodeID string) error {
	if err := ValidateString(nodeID, "node_id", 1, MaxNodeIDLength, true); err != nil {
		return err
	}
	if !NodeIDPattern.MatchString(nodeID) {
		return fmt.Errorf("%w: node_id contains invalid characters (only alphanumeric, dots, hyphens, and underscores allowed)", ErrInvalidInput)
	}
	return nil
}

// ValidateSourceURI validates a pipeline source URI
func ValidateSourceURI(uri string) error {
	if err := ValidateString(uri, "source", 1, MaxSourceLength, true); err != nil {
		return err
	}
	if !SourceSchemePattern.MatchString(uri) {
		return fmt.Errorf("%w: source must be a network stream URI (rtsp, rtmp, http, udp, tcp, srt)", ErrInvalidInput)
	}
	if strings.ContainsAny(uri, " \t\r\n") {
		return fmt.Errorf("%w: source must not contain whitespace", ErrInvalidInput)
	}
	return nil
}
