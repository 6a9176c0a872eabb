package model

import (
	"testing"
	"time"
)

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		margin    time.Duration
		want      bool
	}{
		{"zero expiry never expires", time.Time{}, 0, false},
		{"future expiry", now.Add(time.Hour), 10 * time.Second, false},
		{"past expiry", now.Add(-time.Minute), 0, true},
		{"within margin", now.Add(5 * time.Second), 10 * time.Second, true},
		{"exactly at expiry", now, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ExpiresAt: tt.expiresAt}
			if got := s.Expired(now, tt.margin); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := NewRateLimitedError()
	if got := err.Error(); got != "[RATE_LIMITED] "+err.Message {
		t.Errorf("Error() = %q", got)
	}
}
