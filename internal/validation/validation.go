// Package validation provides input validation for the Spendgate API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/spendgate/internal/money"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// MaxItemLength bounds item names and free-text metadata
const MaxItemLength = 500

// identityRegex validates agent identities (EVM-style addresses)
var identityRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidIdentity checks if a string is a syntactically valid identity
func IsValidIdentity(id string) bool {
	return identityRegex.MatchString(id)
}

// NormalizeIdentity lowercases and trims an identity string
func NormalizeIdentity(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// SanitizeString trims, bounds, and strips null bytes from free text
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// FieldError represents a single field validation failure
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is a collection of validation failures
type FieldErrors []FieldError

// Error implements the error interface
func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects failures
func Validate(validators ...func() *FieldError) FieldErrors {
	var errs FieldErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *FieldError {
	return func() *FieldError {
		if strings.TrimSpace(value) == "" {
			return &FieldError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidIdentity checks if a field is a syntactically valid identity
func ValidIdentity(field, value string) func() *FieldError {
	return func() *FieldError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidIdentity(value) {
			return &FieldError{Field: field, Message: "must be a valid identity (0x + 40 hex chars)"}
		}
		return nil
	}
}

// PositiveAmount checks if a field is a strictly positive decimal amount
func PositiveAmount(field, value string) func() *FieldError {
	return func() *FieldError {
		if value == "" {
			return nil
		}
		if _, ok := money.ParsePositive(value); !ok {
			return &FieldError{Field: field, Message: "must be a positive decimal amount"}
		}
		return nil
	}
}

// AcceptedCurrency checks if a field is a currency the pipeline settles
func AcceptedCurrency(field, value string) func() *FieldError {
	return func() *FieldError {
		if value == "" {
			return nil
		}
		if !money.AcceptedCurrency(value) {
			return &FieldError{Field: field, Message: "is not an accepted currency"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *FieldError {
	return func() *FieldError {
		if len(value) > max {
			return &FieldError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// IdentityParamMiddleware validates the :identity URL parameter on routes
// that use it, rejecting malformed identities before handlers run.
func IdentityParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("identity")
		if id != "" && !IsValidIdentity(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_identity",
				"message": "identity must be 0x + 40 hex chars",
			})
			return
		}
		c.Next()
	}
}
