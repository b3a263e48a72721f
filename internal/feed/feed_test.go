package feed

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/dedup"
	"github.com/solcopy/engine/internal/ingest"
	"github.com/solcopy/engine/internal/poller"
	"github.com/solcopy/engine/pkg/logging"
)

func TestFeedRunStopsCleanlyOnCancel(t *testing.T) {
	dedupSet := dedup.New(dedup.MinCapacityPerLeader)
	log := logging.GetDefault().Component("feed-test")

	stream := ingest.NewClient("wss://example.invalid", nil, time.Second, dedupSet, log)
	p := poller.New(nil, time.Hour, dedupSet, log)

	f := New(stream, p, log)
	f.SetLeaders([]solana.PublicKey{solana.SystemProgramID})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
