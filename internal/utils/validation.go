package utils

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Request size limits (in bytes)
const (
	MaxRequestSize    = 48 * 1024 * 1024 // base64 inflates a 32MB payload to ~43MB
	MaxParametersSize = 64 * 1024        // serialized parameters map
	MaxParameterKey   = 128
	MaxOperationName  = 128
)

// SizeValidator validates size limits
type SizeValidator struct {
	maxSize int
}

// NewSizeValidator creates a new validator with the specified max size
func NewSizeValidator(maxSize int) *SizeValidator {
	return &SizeValidator{maxSize: maxSize}
}

// ValidateSize checks if the data size is within limits
func (v *SizeValidator) ValidateSize(data []byte) error {
	if size := len(data); size > v.maxSize {
		return fmt.Errorf("size %d bytes exceeds maximum %d bytes", size, v.maxSize)
	}
	return nil
}

// ValidateParameters validates an operation parameter map before it is
// hashed into a cache key and sent to the inference service
func ValidateParameters(params map[string]string) error {
	for k := range params {
		if k == "" {
			return fmt.Errorf("parameter name must not be empty")
		}
		if len(k) > MaxParameterKey {
			return fmt.Errorf("parameter name %.32q... exceeds %d bytes", k, MaxParameterKey)
		}
	}

	// Serialize to JSON to check size
	data, err := sonic.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	return NewSizeValidator(MaxParametersSize).ValidateSize(data)
}

// ValidateOperation validates an operation name
func ValidateOperation(name string) error {
	if len(name) > MaxOperationName {
		return fmt.Errorf("operation name exceeds %d bytes", MaxOperationName)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("operation name contains control characters")
		}
	}
	return nil
}
