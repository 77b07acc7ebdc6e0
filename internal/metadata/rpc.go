package metadata

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// RPC is a minimal Solana JSON-RPC 2.0 client covering the lookups the
// engine needs: block times, raw account data and filtered program scans.
type RPC struct {
	endpoint  string
	client    *Client
	requestID atomic.Uint64
}

// NewRPC creates an RPC bound to one endpoint, sharing the guarded client.
func NewRPC(endpoint string, client *Client) *RPC {
	return &RPC{endpoint: endpoint, client: client}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC call through the guarded client.
func (r *RPC) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if m := r.client.metrics; m != nil {
		start := time.Now()
		defer func() {
			m.RPCCallLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
		}()
	}

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      r.requestID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := r.client.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", ErrUnavailable, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, rpcResp.Error)
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%w: unmarshal result: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// GetBlockTime returns the unix timestamp of a slot.
func (r *RPC) GetBlockTime(ctx context.Context, slot uint64) (int64, error) {
	var ts *int64
	if err := r.call(ctx, "getBlockTime", []interface{}{slot}, &ts); err != nil {
		return 0, err
	}
	if ts == nil {
		return 0, fmt.Errorf("%w: no block time for slot %d", ErrUnavailable, slot)
	}
	return *ts, nil
}

// DataSlice limits GetAccountData to a byte range.
type DataSlice struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

type accountInfoResult struct {
	Value *struct {
		Data []string `json:"data"` // [payload, encoding]
	} `json:"value"`
}

// GetAccountData fetches an account's raw data, optionally sliced.
func (r *RPC) GetAccountData(ctx context.Context, pubkey string, slice *DataSlice) ([]byte, error) {
	cfg := map[string]interface{}{"encoding": "base64"}
	if slice != nil {
		cfg["dataSlice"] = slice
	}

	var result accountInfoResult
	if err := r.call(ctx, "getAccountInfo", []interface{}{pubkey, cfg}, &result); err != nil {
		return nil, err
	}
	if result.Value == nil || len(result.Value.Data) == 0 {
		return nil, fmt.Errorf("%w: account %s not found", ErrUnavailable, pubkey)
	}
	data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: decode account %s data: %v", ErrUnavailable, pubkey, err)
	}
	return data, nil
}

// MemcmpFilter matches accounts whose data at Offset equals the base58
// encoded Bytes.
type MemcmpFilter struct {
	Offset int
	Bytes  string
}

// ProgramAccount is one getProgramAccounts result row.
type ProgramAccount struct {
	Pubkey string
	Data   []byte
}

type programAccountResult struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data []string `json:"data"` // [payload, encoding]
	} `json:"account"`
}

// GetProgramAccounts lists accounts owned by program that match every
// filter, optionally slicing the returned data.
func (r *RPC) GetProgramAccounts(ctx context.Context, program string, filters []MemcmpFilter, slice *DataSlice) ([]ProgramAccount, error) {
	cfg := map[string]interface{}{"encoding": "base64"}
	if slice != nil {
		cfg["dataSlice"] = slice
	}
	if len(filters) > 0 {
		wire := make([]map[string]interface{}, 0, len(filters))
		for _, f := range filters {
			wire = append(wire, map[string]interface{}{
				"memcmp": map[string]interface{}{"offset": f.Offset, "bytes": f.Bytes},
			})
		}
		cfg["filters"] = wire
	}

	var result []programAccountResult
	if err := r.call(ctx, "getProgramAccounts", []interface{}{program, cfg}, &result); err != nil {
		return nil, err
	}

	accounts := make([]ProgramAccount, 0, len(result))
	for _, row := range result {
		if len(row.Account.Data) == 0 {
			return nil, fmt.Errorf("%w: program account %s has no data", ErrUnavailable, row.Pubkey)
		}
		data, err := base64.StdEncoding.DecodeString(row.Account.Data[0])
		if err != nil {
			return nil, fmt.Errorf("%w: decode account %s data: %v", ErrUnavailable, row.Pubkey, err)
		}
		accounts = append(accounts, ProgramAccount{Pubkey: row.Pubkey, Data: data})
	}
	return accounts, nil
}
