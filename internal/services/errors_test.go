package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/MY221B/bird-download/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrProtocol, "birdreport", "decrypt", "bad padding", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"birdreport", "decrypt", "bad padding"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", services.Wrap(services.ErrNetwork, "birdreport", "post", "", errors.New("reset")), true},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"auth", services.Wrap(services.ErrAuth, "sounds", "lookup", "missing token", nil), false},
		{"config", services.Wrap(services.ErrConfiguration, "planner", "", "start after end", nil), false},
		{"plain", errors.New("other"), false},
	}
	for _, tc := range cases {
		if got := services.IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryable=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestKindLabels(t *testing.T) {
	if got := services.Kind(services.Wrap(services.ErrValidation, "", "", "blank", nil)); got != "validation" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := services.Kind(services.Wrap(services.ErrProtocol, "", "", "no data", nil)); got != "protocol" {
		t.Fatalf("unexpected kind %q", got)
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	raw := strings.Repeat("鸟", 10)
	got := services.Truncate(raw, 7)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
	if strings.ContainsRune(strings.TrimSuffix(got, "..."), '�') {
		t.Fatalf("truncation split a rune: %q", got)
	}
	if services.Truncate("short", 20) != "short" {
		t.Fatal("short strings must be unchanged")
	}
}
