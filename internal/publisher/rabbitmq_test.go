package publisher

import (
	"testing"
	"time"
)

func TestNextDelay(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{2 * time.Second, 4 * time.Second},
		{8 * time.Second, 16 * time.Second},
		{16 * time.Second, maxReconnectDelay},
		{maxReconnectDelay, maxReconnectDelay},
	}
	for _, tt := range tests {
		if got := nextDelay(tt.in); got != tt.want {
			t.Errorf("nextDelay(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestQueueArgs(t *testing.T) {
	args := QueueArgs()
	if args["x-dead-letter-exchange"] != deadLetterExchange {
		t.Errorf("expected dead letter exchange %q, got %v", deadLetterExchange, args["x-dead-letter-exchange"])
	}
	if args["x-queue-type"] != "quorum" {
		t.Errorf("expected quorum queue, got %v", args["x-queue-type"])
	}

	// Each call must return a fresh table.
	args["x-queue-type"] = "classic"
	if QueueArgs()["x-queue-type"] != "quorum" {
		t.Error("QueueArgs returned a shared table")
	}
}
