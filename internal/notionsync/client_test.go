package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProofDatabase_WaitPacesCalls(t *testing.T) {
	d := &ProofDatabase{minInterval: 20 * time.Millisecond}
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := d.wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("three calls took %v, want at least 40ms", elapsed)
	}
}

func TestProofDatabase_WaitHonoursContext(t *testing.T) {
	d := &ProofDatabase{minInterval: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	if err := d.wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	cancel()
	if err := d.wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("wait after cancel = %v, want context.Canceled", err)
	}
}
