package apperrors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrTrace(t *testing.T) {
	tcs := []struct {
		name     string
		err      *Err
		expected string
	}{
		{
			name:     "NoCause",
			err:      NewNotFound("position not found"),
			expected: "position not found",
		},
		{
			name:     "WithCauses",
			err:      NewServiceFailure("fanout publish failed").WithCause(NewSubscriptionDropped("channel gone").WithCause(fmt.Errorf("EOF"))),
			expected: "fanout publish failed\nCaused by: channel gone\nCaused by: EOF",
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, c.err.Trace(), "unexpected error trace")
		})
	}
}

func TestErrStatusCode(t *testing.T) {
	tcs := []struct {
		err          *Err
		expectedCode int
	}{
		{err: NewPermissionDenied("fake"), expectedCode: http.StatusForbidden},
		{err: NewNotFound("fake"), expectedCode: http.StatusNotFound},
		{err: NewBadInput("fake"), expectedCode: http.StatusBadRequest},
		{err: NewWriteConflict("fake"), expectedCode: http.StatusConflict},
		{err: NewServiceFailure("fake"), expectedCode: http.StatusInternalServerError},
		{err: NewTransientPosition("fake"), expectedCode: http.StatusInternalServerError},
	}
	for _, c := range tcs {
		assert.Equal(t, c.expectedCode, c.err.StatusCode(), "unexpected status code")
	}
}

func TestIsCode(t *testing.T) {
	wrapped := NewServiceFailure("outer").WithCause(NewTransientPosition("inner"))
	assert.True(t, IsCode(wrapped, CodeServiceFailure))
	assert.True(t, IsCode(wrapped, CodeTransientPosition))
	assert.False(t, IsCode(wrapped, CodePermissionDenied))
	assert.False(t, IsCode(fmt.Errorf("plain"), CodeServiceFailure))
}
