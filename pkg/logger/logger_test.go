package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelInfo})

	l.With(Component("risk")).Info("estimated", StudentID(7), CourseID(3), RiskLevel("HIGH"), Err(errors.New("boom")))
	l.Debug("dropped")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	e := lines[0]
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "estimated", e["message"])
	assert.Equal(t, "risk", e["component"])
	assert.Equal(t, float64(7), e["student_id"])
	assert.Equal(t, float64(3), e["course_id"])
	assert.Equal(t, "HIGH", e["risk_level"])
	assert.Equal(t, "boom", e["error"])
	assert.NotEmpty(t, e["timestamp"])
}

func TestLogger_Context(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelDebug}).WithRequestID("req-1")

	ctx := WithContext(context.Background(), l)
	FromContext(ctx).Warn("slow")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0][RequestIDKey])
	assert.Equal(t, "WARN", lines[0]["level"])

	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
