package vlog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestFromWithoutAttachedLoggerIsSilent(t *testing.T) {
	log := From(context.Background())
	if log == nil {
		t.Fatalf("From(background context) = nil")
	}
	// the discard logger must not panic and must not be visibly different
	// from any other *slog.Logger to callers.
	log.Info("should not appear anywhere")
}

func TestNewContextRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := NewContext(context.Background(), logger)
	got := From(ctx)
	got.Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("logger attached via NewContext was not used: %q", buf.String())
	}
}

func TestFromIgnoresNilLogger(t *testing.T) {
	ctx := NewContext(context.Background(), nil)
	log := From(ctx)
	if log == nil {
		t.Fatalf("From with a nil attached logger returned nil")
	}
}
