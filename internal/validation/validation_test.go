package validation

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"London", 10, "London"},
		{"  London  ", 10, "London"},
		{"San Francisco", 3, "San"},
		{"New\x00York", 20, "NewYork"},
		{"Zürich", 2, "Z"},
		{"bad\xffbyte", 20, "badbyte"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, SanitizeString(tc.input, tc.maxLen))
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	hour := 24
	errs := Validate(
		Required("transaction_id", ""),
		Required("location", "London"),
		NonNegative("amount", -5),
		IntRange("hour_of_day", &hour, 0, 23),
	)

	require.Len(t, errs, 3)
	assert.Equal(t, "transaction_id", errs[0].Field)
	assert.Equal(t, "amount", errs[1].Field)
	assert.Equal(t, "hour_of_day", errs[2].Field)
	assert.Equal(t, "transaction_id: is required", errs.Error())
}

func TestValidate_NoFailures(t *testing.T) {
	hour := 0
	errs := Validate(
		Required("location", "Tokyo"),
		NonNegative("amount", 0),
		IntRange("hour_of_day", &hour, 0, 23),
		MaxLength("location", "Tokyo", MaxStringLength),
	)
	assert.Empty(t, errs)
	assert.Empty(t, errs.Error(), "a passing result must not read as a failure")
}

func TestNonNegative_RejectsNonFinite(t *testing.T) {
	assert.NotNil(t, NonNegative("amount", math.NaN())())
	assert.NotNil(t, NonNegative("amount", math.Inf(1))())
}

func TestIntRange_NilSkipped(t *testing.T) {
	assert.Nil(t, IntRange("hour", nil, 0, 23)())
	assert.NotNil(t, Present[int]("hour", nil)())

	h := 5
	assert.Nil(t, Present("hour", &h)())
}

func TestMaxLength(t *testing.T) {
	assert.Nil(t, MaxLength("f", "abc", 3)())
	err := MaxLength("f", "abcd", 3)()
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "3")
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestSizeMiddleware(8))
	router.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/echo", bytes.NewBufferString("tiny")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/echo", bytes.NewBufferString("much too large body")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAbortInvalid(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	AbortInvalid(c, ValidationErrors{{Field: "amount", Message: "must be non-negative"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"validation_error"`)
	assert.Contains(t, w.Body.String(), `"amount: must be non-negative"`)
}
