package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContextRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New("test", &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-123")
	log.WithContext(ctx).Info("handling request")

	assert.Contains(t, buf.String(), "request_id=req-123")
}

func TestWithContextNoRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New("test", &buf)

	log.WithContext(context.Background()).Info("background work")

	assert.Contains(t, buf.String(), "background work")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestWithFieldAndError(t *testing.T) {
	var buf bytes.Buffer
	log := New("test", &buf)

	log.WithField("connector", "mercury").WithError(assert.AnError).Warn("fetch failed")

	out := buf.String()
	assert.Contains(t, out, "connector=mercury")
	assert.Contains(t, out, "error=")
}
