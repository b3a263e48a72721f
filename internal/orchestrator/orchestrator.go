// Package orchestrator is the top-level fan-out (C8): for every inbound
// leader transaction event it classifies, finds subscribed users, and
// runs each one's clone→dispatch→ledger job on a per-user single-slot
// queue so a user never has two concurrent copy-trades in flight.
package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/solcopy/engine/internal/classifier"
	"github.com/solcopy/engine/internal/cloner"
	"github.com/solcopy/engine/internal/collaborators"
	"github.com/solcopy/engine/internal/dispatcher"
	"github.com/solcopy/engine/internal/ingest"
	"github.com/solcopy/engine/internal/ledger"
	"github.com/solcopy/engine/internal/store"
	"github.com/solcopy/engine/pkg/logging"
)

const userQueueCapacity = 1

// Orchestrator wires the classifier, cloner, dispatcher, and ledger
// together for every subscribed user of every observed leader event.
type Orchestrator struct {
	collab     *collaborators.Collaborators
	ledger     *ledger.Ledger
	dispatcher *dispatcher.Dispatcher
	reader     cloner.ChainReader
	log        *logging.Logger

	queuesMu sync.Mutex
	queues   map[int64]chan job
}

type job struct {
	intent *classifier.SwapIntent
	sub    *store.TraderSubscription
}

// New builds an Orchestrator.
func New(collab *collaborators.Collaborators, ldgr *ledger.Ledger, disp *dispatcher.Dispatcher, reader cloner.ChainReader, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		collab:     collab,
		ledger:     ldgr,
		dispatcher: disp,
		reader:     reader,
		log:        log.Component("orchestrator"),
		queues:     make(map[int64]chan job),
	}
}

// Run consumes events until ctx is cancelled or the channel closes. Each
// event is classified and fanned out on its own goroutine so a slow
// subscriber lookup for one leader never blocks another leader's events.
func (o *Orchestrator) Run(ctx context.Context, events <-chan ingest.LeaderTxEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			go o.handleEvent(ctx, ev)
		}
	}
}

// handleEvent implements spec §4.7 steps 1-3: classify, look up active
// subscribers of this leader, and enqueue one job per subscriber.
func (o *Orchestrator) handleEvent(ctx context.Context, ev ingest.LeaderTxEvent) {
	intent, ok := classifier.Classify(ev.RawTx, ev.LeaderPubkey)
	if !ok {
		return
	}

	subs, err := o.collab.Store.ListActiveSubscriptions(ctx)
	if err != nil {
		o.log.Warn("list active subscriptions failed", "error", err)
		return
	}

	for _, sub := range subs {
		if !sub.Active || !sub.LeaderPubkey.Equals(ev.LeaderPubkey) {
			continue
		}
		o.enqueue(ctx, sub, intent)
	}
}

// enqueue performs a non-blocking trySend onto the subscriber's per-user
// single-slot queue. A full queue logs and drops this tick rather than
// blocking the fan-out of other users (spec §4.7 point 3).
func (o *Orchestrator) enqueue(ctx context.Context, sub *store.TraderSubscription, intent *classifier.SwapIntent) {
	queue := o.userQueue(ctx, sub.OwnerChatID)
	select {
	case queue <- job{intent: intent, sub: sub}:
	default:
		o.log.Warn("per-user queue full, dropping this tick", "chat_id", sub.OwnerChatID, "leader", sub.LeaderPubkey)
	}
}

func (o *Orchestrator) userQueue(ctx context.Context, chatID int64) chan job {
	o.queuesMu.Lock()
	defer o.queuesMu.Unlock()

	if q, ok := o.queues[chatID]; ok {
		return q
	}
	q := make(chan job, userQueueCapacity)
	o.queues[chatID] = q
	go o.runUserWorker(ctx, chatID, q)
	return q
}

func (o *Orchestrator) runUserWorker(ctx context.Context, chatID int64, queue chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-queue:
			o.processJob(ctx, chatID, j)
		}
	}
}

// processJob implements spec §4.7 step 4: C4 → C5, then C6 on success and
// a lifecycle event to the notifier either way. Retries the dispatch once
// on any dispatch error other than a nonce-advance failure, whether or not
// the error was transient; an on-chain failure comes back as a Failed
// status rather than an error and is never retried, and a classifier
// rejection never reaches this function at all.
func (o *Orchestrator) processJob(ctx context.Context, chatID int64, j job) {
	tradeID := uuid.New().String()
	intent := j.intent

	user, err := o.collab.Store.GetUser(ctx, chatID)
	if err != nil {
		o.emitFailed(tradeID, "load user: "+err.Error())
		return
	}
	wallet, err := o.collab.Store.GetWallet(ctx, chatID, user.Settings.PrimaryWalletLabel)
	if err != nil {
		o.emitFailed(tradeID, "load wallet: "+err.Error())
		return
	}
	signer, err := o.collab.Signers.SignerFor(ctx, chatID, wallet.Label)
	if err != nil {
		o.emitFailed(tradeID, "load signer: "+err.Error())
		return
	}

	userAmountRaw, position, skip := o.sizeTrade(chatID, intent, user)
	if skip {
		// Sell against a fully-sold position is an idempotent no-op
		// (spec §4.7 "Sell failures on a fully-sold position are
		// idempotent").
		return
	}

	cloneResult, err := cloner.Clone(ctx, o.reader, cloner.Input{
		Intent:        intent,
		UserPubkey:    wallet.Pubkey,
		UserAmountRaw: userAmountRaw,
		SlippageBps:   user.Settings.SlippageBps,
	})
	if err != nil {
		var fatal *cloner.FatalError
		if errors.As(err, &fatal) {
			o.emitFailed(tradeID, fatal.Error())
			return
		}
		o.emitFailed(tradeID, "clone: "+err.Error())
		return
	}

	dispatchInput := dispatcher.Input{
		Instructions:        cloneResult.Instructions,
		UsedNonce:           cloneResult.UsedNonce,
		UserPubkey:          wallet.Pubkey,
		Signer:              signer,
		TradeAmountLamports: userAmountRaw,
	}

	result, err := o.dispatcher.Dispatch(ctx, dispatchInput)
	if err != nil {
		// Retry once on any dispatch error except a nonce-advance
		// failure; transient and non-transient send errors are not told
		// apart here.
		if !errors.Is(err, dispatcher.ErrNonceAdvanceFailed) {
			result, err = o.dispatcher.Dispatch(ctx, dispatchInput)
		}
	}
	if err != nil {
		o.emitFailed(tradeID, "dispatch: "+err.Error())
		return
	}

	switch result.Status {
	case store.TradeStatusConfirmed:
		o.applyLedger(ctx, chatID, intent, userAmountRaw, result.FeeLamports, position)
		o.collab.Notifier.Emit(tradeID, "TradeCompleted", result)
	case store.TradeStatusPending:
		o.collab.Notifier.Emit(tradeID, "TradePending", result)
	default:
		o.collab.Notifier.Emit(tradeID, "TradeFailed", result)
	}
}

// sizeTrade resolves how much this user trades: sol_amount_per_trade for
// a buy, or the user's current position for a sell (spec §4.7 step 3).
// skip reports a sell with nothing left to sell.
func (o *Orchestrator) sizeTrade(chatID int64, intent *classifier.SwapIntent, user *store.User) (amountRaw uint64, position *store.Position, skip bool) {
	if intent.TradeType == classifier.Buy {
		return user.Settings.SolAmountPerTradeLamports, nil, false
	}

	position = o.ledger.GetPosition(chatID, intent.InputMint)
	if position == nil || position.AmountRaw == nil || position.AmountRaw.Sign() == 0 {
		return 0, nil, true
	}
	return position.AmountRaw.Uint64(), position, false
}

// applyLedger mirrors the dispatch's economic result into the ledger.
// The dispatcher's confirmation path reports success/failure, not actual
// on-chain balance deltas (that would require re-fetching and decoding
// the confirmed transaction's own pre/post balances, duplicating the
// ingest package's balance-parsing machinery against this transaction
// rather than the leader's); this implementation scales the leader's
// observed in/out amounts by the same ratio the clone used, which is
// exact when slippage is zero and a close approximation otherwise.
func (o *Orchestrator) applyLedger(ctx context.Context, chatID int64, intent *classifier.SwapIntent, userAmountRaw, feeLamports uint64, position *store.Position) {
	if intent.TradeType == classifier.Buy {
		tokensReceived := scaleProportional(intent.LeaderOutAmountRaw, userAmountRaw, intent.LeaderInAmountRaw)
		if _, err := o.ledger.BuyFill(ctx, chatID, intent.OutputMint, tokensReceived, userAmountRaw, feeLamports); err != nil {
			o.log.Warn("ledger buy-fill failed", "error", err)
		}
		return
	}

	solReceived := scaleProportional(intent.LeaderOutAmountRaw, userAmountRaw, intent.LeaderInAmountRaw)
	if _, err := o.ledger.SellFill(ctx, chatID, intent.InputMint, big.NewInt(0).SetUint64(userAmountRaw), solReceived.Uint64(), feeLamports); err != nil {
		if !errors.Is(err, ledger.ErrNoPosition) {
			o.log.Warn("ledger sell-fill failed", "error", err)
		}
	}
}

func (o *Orchestrator) emitFailed(tradeID, reason string) {
	o.collab.Notifier.Emit(tradeID, "TradeFailed", reason)
}

func scaleProportional(part, numerator, denominator uint64) *big.Int {
	if denominator == 0 {
		return big.NewInt(0)
	}
	n := new(big.Int).Mul(big.NewInt(0).SetUint64(part), big.NewInt(0).SetUint64(numerator))
	return n.Div(n, big.NewInt(0).SetUint64(denominator))
}
