package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/config"
)

// HTTPApiManager is the reference ApiManager: a plain REST client against
// a price/metadata indexer. Grounded on the teacher's JSONRPCBackend (same
// http.Client-with-timeout, NewRequestWithContext, io.ReadAll-then-Unmarshal
// shape) but POSTs a batch body rather than JSON-RPC envelopes, since the
// indexer this engine talks to is a plain HTTP API, not a JSON-RPC node.
type HTTPApiManager struct {
	baseURL string
	client  *http.Client
}

// NewHTTPApiManager builds an HTTPApiManager against cfg.BaseURL.
func NewHTTPApiManager(cfg config.ApiConfig) *HTTPApiManager {
	return &HTTPApiManager{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout()},
	}
}

type tokenPriceResponse struct {
	Prices map[string]float64 `json:"prices"`
}

// GetTokenPrices batch-fetches SOL-denominated prices for mints.
func (a *HTTPApiManager) GetTokenPrices(ctx context.Context, mints []solana.PublicKey) (map[solana.PublicKey]TokenPrice, error) {
	if len(mints) == 0 {
		return map[solana.PublicKey]TokenPrice{}, nil
	}

	var resp tokenPriceResponse
	if err := a.post(ctx, "/v1/token-prices", mintStrings(mints), &resp); err != nil {
		return nil, fmt.Errorf("collaborators: get token prices: %w", err)
	}

	out := make(map[solana.PublicKey]TokenPrice, len(resp.Prices))
	for mintStr, price := range resp.Prices {
		pk, err := solana.PublicKeyFromBase58(mintStr)
		if err != nil {
			continue
		}
		out[pk] = TokenPrice{Mint: pk, PriceSol: price}
	}
	return out, nil
}

type tokenMetadataEntry struct {
	Decimals     uint8  `json:"decimals"`
	TotalSupply  string `json:"total_supply"`
	TokenProgram string `json:"token_program"`
}

type tokenMetadataResponse struct {
	Metadata map[string]tokenMetadataEntry `json:"metadata"`
}

// GetTokenMetadatas batch-fetches decimals, total supply, and token-program
// variant for mints.
func (a *HTTPApiManager) GetTokenMetadatas(ctx context.Context, mints []solana.PublicKey) (map[solana.PublicKey]TokenMetadata, error) {
	if len(mints) == 0 {
		return map[solana.PublicKey]TokenMetadata{}, nil
	}

	var resp tokenMetadataResponse
	if err := a.post(ctx, "/v1/token-metadata", mintStrings(mints), &resp); err != nil {
		return nil, fmt.Errorf("collaborators: get token metadatas: %w", err)
	}

	out := make(map[solana.PublicKey]TokenMetadata, len(resp.Metadata))
	for mintStr, entry := range resp.Metadata {
		pk, err := solana.PublicKeyFromBase58(mintStr)
		if err != nil {
			continue
		}
		supply, ok := new(big.Int).SetString(entry.TotalSupply, 10)
		if !ok {
			continue
		}
		program := solana.TokenProgramID
		if entry.TokenProgram != "" {
			if p, err := solana.PublicKeyFromBase58(entry.TokenProgram); err == nil {
				program = p
			}
		}
		out[pk] = TokenMetadata{Mint: pk, Decimals: entry.Decimals, TotalSupply: supply, TokenProgram: program}
	}
	return out, nil
}

type sellStateResponse struct {
	Sellable bool   `json:"sellable"`
	Reason   string `json:"reason"`
}

// GetSellState reports whether mint is still sellable ahead of a
// speculative pre-build.
func (a *HTTPApiManager) GetSellState(ctx context.Context, mint solana.PublicKey) (SellState, error) {
	var resp sellStateResponse
	if err := a.post(ctx, "/v1/sell-state", []string{mint.String()}, &resp); err != nil {
		return SellState{}, fmt.Errorf("collaborators: get sell state: %w", err)
	}
	return SellState{Mint: mint, Sellable: resp.Sellable, Reason: resp.Reason}, nil
}

func (a *HTTPApiManager) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("indexer returned %d: %s", resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func mintStrings(mints []solana.PublicKey) []string {
	out := make([]string, len(mints))
	for i, m := range mints {
		out[i] = m.String()
	}
	return out
}

var _ ApiManager = (*HTTPApiManager)(nil)
