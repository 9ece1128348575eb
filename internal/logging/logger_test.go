package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretRedaction(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "plain secret", input: "my-secret-password"},
		{name: "empty secret", input: ""},
		{name: "special characters", input: "password123!@#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "[REDACTED]", Secret(tt.input).String())
			assert.Equal(t, "[REDACTED]", Secret(tt.input).GoString())
		})
	}
}

func TestSecretFormatting(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "hunter2")
}

func TestRedact(t *testing.T) {
	out := Redact("password is hunter2, token is tok-4f2a", []string{"hunter2", "tok-4f2a"})
	assert.Equal(t, "password is [REDACTED], token is [REDACTED]", out)

	// Secrets of three characters or fewer stay as-is to avoid mangling
	// unrelated text.
	out = Redact("a is set, abc too", []string{"a", "abc"})
	assert.Equal(t, "a is set, abc too", out)
}

func TestDebugSuppressedByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false, true)

	logger.Debug("should not appear")
	assert.Empty(t, buf.String())

	logger.Info("hello %s", "world")
	assert.Contains(t, buf.String(), "✓ hello world")
}

func TestDebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, true, true)

	logger.Debug("probe %s", "pg_database")
	assert.Contains(t, buf.String(), "[DEBUG] probe pg_database")
}
