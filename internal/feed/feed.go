// Package feed wires the stream client (C1) and fallback poller (C2)
// together: it watches C1's circuit-breaker transitions to start and stop
// C2, and merges both into one LeaderTxEvent channel for the orchestrator.
package feed

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/ingest"
	"github.com/solcopy/engine/internal/poller"
	"github.com/solcopy/engine/pkg/logging"
)

// Feed is the merged leader-transaction source the orchestrator consumes.
type Feed struct {
	stream *ingest.Client
	poll   *poller.Poller
	log    *logging.Logger
	events chan ingest.LeaderTxEvent
}

// New builds a Feed from an already-constructed stream client and poller,
// sharing the same dedup set (spec §4.1: dedup across C1 and C2 by
// signature in one bounded LRU per leader).
func New(stream *ingest.Client, poll *poller.Poller, log *logging.Logger) *Feed {
	return &Feed{
		stream: stream,
		poll:   poll,
		log:    log,
		events: make(chan ingest.LeaderTxEvent, 2048),
	}
}

// Events is the merged LeaderTxEvent stream from both C1 and C2.
func (f *Feed) Events() <-chan ingest.LeaderTxEvent { return f.events }

// SetLeaders updates the watched leader set on both sources.
func (f *Feed) SetLeaders(leaders []solana.PublicKey) {
	f.stream.SetLeaders(leaders)
	f.poll.SetLeaders(leaders)
}

// Run starts the stream client, the circuit-state watcher, and the merge
// loop. Blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.stream.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.watchCircuit(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.pump(ctx, f.stream.Events())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.pump(ctx, f.poll.Events())
	}()

	wg.Wait()
}

func (f *Feed) watchCircuit(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.poll.Stop()
			return
		case state, ok := <-f.stream.State():
			if !ok {
				return
			}
			switch state {
			case ingest.Degraded:
				f.log.Warn("circuit degraded, starting fallback poller")
				f.poll.Start(ctx)
			case ingest.Healthy:
				f.log.Info("circuit healthy, stopping fallback poller")
				f.poll.Stop()
			}
		}
	}
}

func (f *Feed) pump(ctx context.Context, src <-chan ingest.LeaderTxEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src:
			if !ok {
				return
			}
			select {
			case f.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close stops both underlying sources.
func (f *Feed) Close() error {
	_ = f.stream.Close()
	_ = f.poll.Close()
	return nil
}
