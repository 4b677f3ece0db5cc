package bluetooth

import (
	"testing"
	"time"
)

func TestDescribeRecency(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    string
	}{
		{0, "just now"},
		{3 * time.Second, "just now"},
		{4999 * time.Millisecond, "just now"},
		{5 * time.Second, "5 seconds ago"},
		{45 * time.Second, "45 seconds ago"},
		{59 * time.Second, "59 seconds ago"},
		{60 * time.Second, "1 minute ago"},
		{61 * time.Second, "1 minute ago"},
		{119 * time.Second, "1 minute ago"},
		{125 * time.Second, "2 minutes ago"},
		{59 * time.Minute, "59 minutes ago"},
		{time.Hour, "1 hour ago"},
		{3661 * time.Second, "1 hour ago"},
		{7300 * time.Second, "2 hours ago"},
		{72 * time.Hour, "72 hours ago"},
		{-10 * time.Second, "just now"},
	}

	for _, tt := range tests {
		if got := DescribeRecency(tt.elapsed); got != tt.want {
			t.Errorf("DescribeRecency(%v) = %q, want %q", tt.elapsed, got, tt.want)
		}
	}
}

func TestLastSeenText(t *testing.T) {
	if got := LastSeenText(45 * time.Second); got != "Last seen 45 seconds ago" {
		t.Errorf("Unexpected text: %q", got)
	}
}
