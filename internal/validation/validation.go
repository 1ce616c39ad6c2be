// Package validation provides input validation helpers for the RiskLens API.
package validation

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (64KB). Scoring
// requests carry a handful of fields.
const MaxRequestSize = 64 << 10

// MaxStringLength is the maximum length for free-text fields
const MaxStringLength = 256

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SanitizeString trims whitespace, strips null bytes and invalid UTF-8,
// and cuts the result to at most maxLen bytes on a rune boundary.
func SanitizeString(s string, maxLen int) string {
	s = strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", ""), "")
	s = strings.TrimSpace(s)
	for len(s) > maxLen {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}

// ValidationError is one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every failed field of a request.
type ValidationErrors []ValidationError

// Error names the first failed field. It is empty when nothing failed.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	return e[0].Field + ": " + e[0].Message
}

// Rule checks one field and returns nil when it passes.
type Rule func() *ValidationError

func fail(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate runs every rule and collects the failures in order.
func Validate(rules ...Rule) ValidationErrors {
	var errs ValidationErrors
	for _, rule := range rules {
		if err := rule(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required rejects blank strings.
func Required(field, value string) Rule {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return fail(field, "is required")
		}
		return nil
	}
}

// MaxLength rejects strings longer than max bytes.
func MaxLength(field, value string, max int) Rule {
	return func() *ValidationError {
		if len(value) > max {
			return fail(field, "exceeds maximum length of %d", max)
		}
		return nil
	}
}

// NonNegative rejects NaN, infinities and negative numbers.
func NonNegative(field string, value float64) Rule {
	return func() *ValidationError {
		switch {
		case math.IsNaN(value) || math.IsInf(value, 0):
			return fail(field, "must be a finite number")
		case value < 0:
			return fail(field, "must be non-negative")
		}
		return nil
	}
}

// IntRange checks lo <= value <= hi. A nil value passes; pair it with
// Present for required fields.
func IntRange(field string, value *int, lo, hi int) Rule {
	return func() *ValidationError {
		if value != nil && (*value < lo || *value > hi) {
			return fail(field, "must be between %d and %d", lo, hi)
		}
		return nil
	}
}

// Present rejects an omitted optional field.
func Present[T any](field string, value *T) Rule {
	return func() *ValidationError {
		if value == nil {
			return fail(field, "is required")
		}
		return nil
	}
}

// AbortInvalid writes a 400 response listing every failed field.
func AbortInvalid(c *gin.Context, errs ValidationErrors) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "validation_error",
		"message": errs.Error(),
		"details": errs,
	})
}
