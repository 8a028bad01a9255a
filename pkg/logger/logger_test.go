package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerCarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Output: &buf, Level: zerolog.DebugLevel})

	ctx := logg.WithRequestID(context.Background(), "req-1")
	ctx = logg.WithFields(ctx, map[string]any{"transaction_id": "cs_test_1"})
	logg.Info(ctx, "order.reconciled")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "api" {
		t.Fatalf("expected service field, got %v", entry["service"])
	}
	if entry["request_id"] != "req-1" {
		t.Fatalf("expected request_id req-1, got %v", entry["request_id"])
	}
	if entry["transaction_id"] != "cs_test_1" {
		t.Fatalf("expected transaction_id, got %v", entry["transaction_id"])
	}
	if entry["message"] != "order.reconciled" {
		t.Fatalf("unexpected message %v", entry["message"])
	}
}

func TestLoggerErrorIncludesCause(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Output: &buf})

	logg.Error(context.Background(), "boom", errors.New("stripe down"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["error"] != "stripe down" {
		t.Fatalf("expected error field, got %v", entry["error"])
	}
	if _, ok := entry["stack"]; !ok {
		t.Fatal("expected stack on error logs")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"unknown": zerolog.InfoLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLoggerFieldsDoNotLeakBetweenContexts(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Output: &buf})

	root := logg.WithGuestID(context.Background(), "guest-1")
	_ = logg.WithUserID(root, "user-1")
	logg.Info(root, "cart.pulled")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["guest_id"] != "guest-1" {
		t.Fatalf("expected guest_id, got %v", entry["guest_id"])
	}
	if _, ok := entry["user_id"]; ok {
		t.Fatal("child fields leaked into the parent context")
	}
}

func TestNopDiscards(t *testing.T) {
	logg := Nop()
	ctx := logg.WithFields(context.Background(), map[string]any{"k": "v"})
	if ctx == nil {
		t.Fatal("expected a context")
	}
	logg.Info(ctx, "ignored")
	logg.Error(ctx, "ignored", nil)
}
