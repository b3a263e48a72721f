package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"

	"github.com/solcopy/engine/internal/dedup"
	"github.com/solcopy/engine/pkg/logging"
)

// heartbeatTimeout is how long the stream can go without a message before
// the circuit trips to Degraded.
const heartbeatTimeout = 30 * time.Second

// maxConsecutiveReconnects is the threshold past which a reconnect failure
// is escalated to an error-level log, without ever giving up.
const maxConsecutiveReconnects = 10

// Client is a reconnecting WebSocket subscription to a chain-indexing
// provider's transactionSubscribe-style feed. Grounded on the teacher's
// WSClient read/write pump pair (internal/rpc/websocket.go), adapted from a
// server-side hub client to an outbound reconnecting subscriber.
type Client struct {
	endpoint          string
	fallbackEndpoints []string
	reconnectCap      time.Duration
	dedup             *dedup.SignatureSet
	log               *logging.Logger

	leadersMu sync.RWMutex
	leaders   []solana.PublicKey

	events    chan LeaderTxEvent
	state     chan CircuitState
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewClient builds a stream client. dedupSet is shared with the fallback
// poller so a signature delivered by both paths is only emitted once.
func NewClient(endpoint string, fallbackEndpoints []string, reconnectCap time.Duration, dedupSet *dedup.SignatureSet, log *logging.Logger) *Client {
	return &Client{
		endpoint:          endpoint,
		fallbackEndpoints: fallbackEndpoints,
		reconnectCap:      reconnectCap,
		dedup:             dedupSet,
		log:               log,
		events:            make(chan LeaderTxEvent, 1024),
		state:             make(chan CircuitState, 8),
		closeCh:           make(chan struct{}),
	}
}

// Events implements StreamSource.
func (c *Client) Events() <-chan LeaderTxEvent { return c.events }

// State returns the channel circuit-breaker transitions are published on.
// The fallback poller watches this to start and stop.
func (c *Client) State() <-chan CircuitState { return c.state }

// SetLeaders implements StreamSource. Takes effect on the next (re)connect;
// an active connection is not torn down just to add a leader.
func (c *Client) SetLeaders(leaders []solana.PublicKey) {
	c.leadersMu.Lock()
	c.leaders = append([]solana.PublicKey(nil), leaders...)
	c.leadersMu.Unlock()
}

func (c *Client) currentLeaders() []solana.PublicKey {
	c.leadersMu.RLock()
	defer c.leadersMu.RUnlock()
	return append([]solana.PublicKey(nil), c.leaders...)
}

// Close implements StreamSource.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	return nil
}

// Run drives the reconnect loop until ctx is cancelled or Close is called.
// It never returns on its own accord except for those two cases.
func (c *Client) Run(ctx context.Context) {
	endpoints := append([]string{c.endpoint}, c.fallbackEndpoints...)
	consecutive := 0
	backoff := time.Second

	c.publishState(Degraded)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		default:
		}

		endpoint := endpoints[consecutive%len(endpoints)]
		err := c.runOnce(ctx, endpoint)
		if err == nil {
			// runOnce only returns nil on ctx/close shutdown.
			return
		}

		consecutive++
		if consecutive > maxConsecutiveReconnects {
			c.log.Error("stream reconnect threshold exceeded, still retrying", "consecutive", consecutive, "error", err)
		} else {
			c.log.Warn("stream disconnected, reconnecting", "attempt", consecutive, "endpoint", endpoint, "error", err)
		}

		c.publishState(Degraded)

		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.reconnectCap {
			backoff = c.reconnectCap
		}
	}
}

// runOnce dials, subscribes, and pumps messages until the connection drops
// or the context is cancelled. A nil error means shutdown was requested; any
// other return means the connection failed and should be retried.
func (c *Client) runOnce(ctx context.Context, endpoint string) error {
	dialCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := c.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	lastMessage := time.Now()
	heartbeat := time.NewTicker(5 * time.Second)
	defer heartbeat.Stop()

	msgCh := make(chan []byte, 256)
	readErrCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}
			msgCh <- data
		}
	}()

	conn.SetPongHandler(func(string) error {
		lastMessage = time.Now()
		return nil
	})

	healthy := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closeCh:
			return nil
		case err := <-readErrCh:
			return fmt.Errorf("read: %w", err)
		case data := <-msgCh:
			lastMessage = time.Now()
			if !healthy {
				healthy = true
				c.publishState(Healthy)
			}
			c.handleMessage(data)
		case <-heartbeat.C:
			if time.Since(lastMessage) > heartbeatTimeout {
				if healthy {
					healthy = false
					c.publishState(Degraded)
				}
				return fmt.Errorf("no message in %s", heartbeatTimeout)
			}
			_ = conn.WriteMessage(websocket.PingMessage, nil)
		}
	}
}

func (c *Client) publishState(s CircuitState) {
	select {
	case c.state <- s:
	default:
		// state channel full; the poller only needs the latest transition,
		// dropping a stale one is fine.
	}
}

// subscribeRequest mirrors the transactionSubscribe JSON-RPC envelope. One
// subscription covers every watched leader (accountInclude), filtered to
// exclude vote and failed transactions, at commitment processed, with the
// replay flag set. No starting slot is sent: the client does not track the
// last processed slot, so a reconnect does not resume from it.
type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	leaders := c.currentLeaders()
	if len(leaders) == 0 {
		return nil
	}

	include := make([]string, len(leaders))
	for i, l := range leaders {
		include[i] = l.String()
	}

	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "transactionSubscribe",
		Params: []interface{}{
			map[string]interface{}{
				"accountInclude": include,
				"vote":           false,
				"failed":         false,
			},
			map[string]interface{}{
				"commitment": "processed",
				"encoding":   "json",
				"replay":     true,
			},
		},
	}

	return conn.WriteJSON(req)
}

// wsEnvelope is the transactionNotification shape common to Geyser-backed
// providers: a JSON-RPC notification wrapping one transaction update.
type wsEnvelope struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value wireTransactionUpdate `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

type wireTransactionUpdate struct {
	Signature   string `json:"signature"`
	IsVote      bool   `json:"isVote"`
	Transaction struct {
		Message struct {
			AccountKeys        []string          `json:"accountKeys"`
			Instructions       []wireInstruction `json:"instructions"`
			LoadedWritableKeys []string          `json:"loadedWritableAddresses"`
			LoadedReadonlyKeys []string          `json:"loadedReadonlyAddresses"`
			Header             wireMessageHeader `json:"header"`
		} `json:"message"`
	} `json:"transaction"`
	Meta wireMeta `json:"meta"`
}

type wireMessageHeader struct {
	NumRequiredSignatures       uint8 `json:"numRequiredSignatures"`
	NumReadonlySignedAccounts   uint8 `json:"numReadonlySignedAccounts"`
	NumReadonlyUnsignedAccounts uint8 `json:"numReadonlyUnsignedAccounts"`
}

type wireInstruction struct {
	ProgramIDIndex uint16   `json:"programIdIndex"`
	Accounts       []uint16 `json:"accounts"`
	Data           string   `json:"data"` // base58
}

type wireTokenBalance struct {
	AccountIndex  uint16 `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UiTokenAmount struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"uiTokenAmount"`
}

type wireInnerInstructionSet struct {
	Index        uint16            `json:"index"`
	Instructions []wireInstruction `json:"instructions"`
}

type wireMeta struct {
	Err               interface{}               `json:"err"`
	PreBalances       []uint64                  `json:"preBalances"`
	PostBalances      []uint64                  `json:"postBalances"`
	PreTokenBalances  []wireTokenBalance        `json:"preTokenBalances"`
	PostTokenBalances []wireTokenBalance        `json:"postTokenBalances"`
	LogMessages       []string                  `json:"logMessages"`
	InnerInstructions []wireInnerInstructionSet `json:"innerInstructions"`
}

func (c *Client) handleMessage(data []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	if env.Method != "transactionNotification" {
		return
	}

	update := env.Params.Result.Value
	if update.IsVote {
		return
	}
	if update.Meta.Err != nil {
		return
	}

	event, err := normalizeUpdate(update, env.Params.Result.Context.Slot)
	if err != nil {
		c.log.Warn("dropping unparseable stream update", "signature", update.Signature, "error", err)
		return
	}
	event.Source = "stream"

	leader := leaderFor(event.RawTx, c.currentLeaders())
	if leader.IsZero() {
		return
	}
	event.LeaderPubkey = leader

	if c.dedup.SeenOrAdd(leader.String(), event.Signature) {
		return
	}

	select {
	case c.events <- *event:
	default:
		c.log.Warn("event channel full, dropping event", "signature", event.Signature)
	}
}

// leaderFor returns the first watched leader present in the account key
// list, or the zero pubkey if none match.
func leaderFor(raw *RawTransaction, leaders []solana.PublicKey) solana.PublicKey {
	for _, key := range raw.AccountKeys {
		for _, leader := range leaders {
			if key.Equals(leader) {
				return leader
			}
		}
	}
	return solana.PublicKey{}
}

func normalizeUpdate(update wireTransactionUpdate, slot uint64) (*LeaderTxEvent, error) {
	numStatic := len(update.Transaction.Message.AccountKeys)
	numLoadedWritable := len(update.Transaction.Message.LoadedWritableKeys)

	keys := make([]solana.PublicKey, 0, numStatic+
		numLoadedWritable+len(update.Transaction.Message.LoadedReadonlyKeys))

	appendKeys := func(raw []string) error {
		for _, s := range raw {
			pk, err := solana.PublicKeyFromBase58(s)
			if err != nil {
				return fmt.Errorf("account key %q: %w", s, err)
			}
			keys = append(keys, pk)
		}
		return nil
	}
	if err := appendKeys(update.Transaction.Message.AccountKeys); err != nil {
		return nil, err
	}
	if err := appendKeys(update.Transaction.Message.LoadedWritableKeys); err != nil {
		return nil, err
	}
	if err := appendKeys(update.Transaction.Message.LoadedReadonlyKeys); err != nil {
		return nil, err
	}

	instructions := make([]CompiledInstruction, len(update.Transaction.Message.Instructions))
	for i, wi := range update.Transaction.Message.Instructions {
		data, err := base58.Decode(wi.Data)
		if err != nil {
			return nil, fmt.Errorf("instruction %d data: %w", i, err)
		}
		instructions[i] = CompiledInstruction{
			ProgramIDIndex: wi.ProgramIDIndex,
			AccountIndices: wi.Accounts,
			Data:           data,
		}
	}

	meta, err := normalizeMeta(update.Meta)
	if err != nil {
		return nil, err
	}

	header := update.Transaction.Message.Header

	return &LeaderTxEvent{
		Signature:  update.Signature,
		Slot:       slot,
		ObservedAt: time.Now(),
		RawTx: &RawTransaction{
			AccountKeys:                 keys,
			NumStaticAccountKeys:        numStatic,
			NumLoadedWritable:           numLoadedWritable,
			NumRequiredSignatures:       header.NumRequiredSignatures,
			NumReadonlySignedAccounts:   header.NumReadonlySignedAccounts,
			NumReadonlyUnsignedAccounts: header.NumReadonlyUnsignedAccounts,
			Instructions:                instructions,
			Meta:                        meta,
		},
	}, nil
}

func normalizeMeta(m wireMeta) (TransactionMeta, error) {
	toBalances := func(src []wireTokenBalance) ([]TokenBalance, error) {
		out := make([]TokenBalance, len(src))
		for i, tb := range src {
			mint, err := solana.PublicKeyFromBase58(tb.Mint)
			if err != nil {
				return nil, fmt.Errorf("token balance mint %q: %w", tb.Mint, err)
			}
			var owner solana.PublicKey
			if tb.Owner != "" {
				owner, err = solana.PublicKeyFromBase58(tb.Owner)
				if err != nil {
					return nil, fmt.Errorf("token balance owner %q: %w", tb.Owner, err)
				}
			}
			amount, ok := new(big.Int).SetString(tb.UiTokenAmount.Amount, 10)
			if !ok {
				return nil, fmt.Errorf("token balance amount %q: not a decimal integer", tb.UiTokenAmount.Amount)
			}
			out[i] = TokenBalance{
				AccountIndex: tb.AccountIndex,
				Mint:         mint,
				Owner:        owner,
				Amount:       amount,
				Decimals:     tb.UiTokenAmount.Decimals,
			}
		}
		return out, nil
	}

	pre, err := toBalances(m.PreTokenBalances)
	if err != nil {
		return TransactionMeta{}, err
	}
	post, err := toBalances(m.PostTokenBalances)
	if err != nil {
		return TransactionMeta{}, err
	}

	inner := make([]InnerInstructionSet, len(m.InnerInstructions))
	for i, set := range m.InnerInstructions {
		instructions := make([]CompiledInstruction, len(set.Instructions))
		for j, wi := range set.Instructions {
			data, err := base58.Decode(wi.Data)
			if err != nil {
				return TransactionMeta{}, fmt.Errorf("inner instruction %d.%d data: %w", i, j, err)
			}
			instructions[j] = CompiledInstruction{
				ProgramIDIndex: wi.ProgramIDIndex,
				AccountIndices: wi.Accounts,
				Data:           data,
			}
		}
		inner[i] = InnerInstructionSet{Index: set.Index, Instructions: instructions}
	}

	return TransactionMeta{
		Err:               m.Err != nil,
		PreBalances:       m.PreBalances,
		PostBalances:      m.PostBalances,
		PreTokenBalances:  pre,
		PostTokenBalances: post,
		LogMessages:       m.LogMessages,
		InnerInstructions: inner,
	}, nil
}
