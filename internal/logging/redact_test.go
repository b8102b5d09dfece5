package logging

import (
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestRedact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"empty", "", ""},
		{"tiny", "ab", "***"},
		{"short", "abcd", "a...d"},
		{"medium", "abcdefg", "ab...fg"},
		{"token", "tok123456789", "tok1...6789"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Redact(tt.in); got != tt.expected {
				t.Fatalf("Redact(%q) = %q, want %q", tt.in, got, tt.expected)
			}
		})
	}
}

func TestRedactNeverReturnsFullSecret(t *testing.T) {
	secret := "mfa.VkO_2G4Qv3T--NO--lWetW_tjND--TOKEN--QFTm6YGtzq9PH--4U--tG0"
	if strings.Contains(Redact(secret), secret[4:len(secret)-4]) {
		t.Fatal("redacted value leaks the secret body")
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	t.Parallel()

	got := MaskSensitiveQuery("code=abcdefghijkl&state=0123456789abcdef&foo=bar")
	if strings.Contains(got, "abcdefghijkl") || strings.Contains(got, "0123456789abcdef") {
		t.Fatalf("credentials leaked: %s", got)
	}
	if !strings.Contains(got, "foo=bar") {
		t.Fatalf("non-sensitive parameter altered: %s", got)
	}
	if MaskSensitiveQuery("a=1&b=2") != "a=1&b=2" {
		t.Fatal("expected untouched query when nothing is sensitive")
	}
}

func TestLogFormatterUsesAttemptPrefix(t *testing.T) {
	entry := &log.Entry{
		Logger:  log.New(),
		Time:    time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
		Level:   log.InfoLevel,
		Message: "token received\n",
		Data: log.Fields{
			"attempt": "3f2a9c1e-7777-4444-8888-000000000000",
			"phase":   "exchanging",
			"ignored": "x",
		},
	}
	out, err := (&LogFormatter{}).Format(entry)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	line := string(out)
	want := "[2026-10-18 12:00:00] [3f2a9c1e] [info ] token received phase=exchanging\n"
	if line != want {
		t.Fatalf("unexpected line:\n got %q\nwant %q", line, want)
	}
}
