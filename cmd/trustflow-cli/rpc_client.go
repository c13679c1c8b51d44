package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var (
	rpcCall       = callRPC
	chainIDLookup = fetchChainID
	httpClient    = &http.Client{Timeout: 30 * time.Second}
)

func callRPC(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	if params == nil {
		params = []interface{}{}
	}
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method, "params": params}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request: %w", err)
	}
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response from node (HTTP %d)", resp.StatusCode)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(rpcAuthToken); requireAuth && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

// healthURL maps the RPC endpoint onto the node's /healthz route.
func healthURL(endpoint string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	trimmed = strings.TrimSuffix(trimmed, "/rpc")
	return trimmed + "/healthz"
}

func fetchChainID() (uint64, error) {
	resp, err := httpClient.Get(healthURL(rpcEndpoint))
	if err != nil {
		return 0, fmt.Errorf("query node health: %w", err)
	}
	defer resp.Body.Close()
	var health struct {
		Status      string `json:"status"`
		ChainID     uint64 `json:"chainId"`
		Initialized bool   `json:"initialized"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return 0, fmt.Errorf("decode node health: %w", err)
	}
	if !health.Initialized {
		return 0, errors.New("node ledger is not initialised")
	}
	return health.ChainID, nil
}

// callInto performs a read-only call and decodes its result into out.
func callInto(method string, params []interface{}, out interface{}) error {
	result, rpcErr, err := rpcCall(method, params, false)
	if err != nil {
		return err
	}
	if rpcErr != nil {
		return fmt.Errorf("%s: %s (code %d)", method, rpcErr.Message, rpcErr.Code)
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func runRPC(method string, params []interface{}, requireAuth bool, stdout, stderr io.Writer) int {
	result, rpcErr, err := rpcCall(method, params, requireAuth)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func handleRPCCallError(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func handleRPCError(stderr io.Writer, rpcErr *rpcError) int {
	fmt.Fprintf(stderr, "Error: %s (code %d)\n", rpcErr.Message, rpcErr.Code)
	if len(rpcErr.Data) > 0 && string(rpcErr.Data) != "null" {
		fmt.Fprintf(stderr, "Details: %s\n", string(rpcErr.Data))
	}
	return 1
}

func writeRPCResult(stdout io.Writer, result json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		fmt.Fprintln(stdout, string(result))
		return
	}
	fmt.Fprintln(stdout, buf.String())
}

func writeJSON(stdout io.Writer, v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
