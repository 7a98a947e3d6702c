package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// BundleRPC is the delegated-authority wallet surface the adapter consumes:
// sub-account management, atomic call bundles, and parent-account signing.
type BundleRPC interface {
	GetSubAccounts(ctx context.Context, origin string) ([]SubAccount, error)
	AddSubAccount(ctx context.Context, req *AddSubAccountRequest) (*SubAccount, error)
	SendCalls(ctx context.Context, req *SendCallsRequest) (string, error)
	GetCallsStatus(ctx context.Context, bundleID string) (*CallsStatus, error)
	PersonalSign(ctx context.Context, account common.Address, message []byte) (string, error)
}

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonRPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonRPCError   `json:"error"`
}

// RPCClient speaks JSON-RPC over HTTP to the wallet provider.
type RPCClient struct {
	url        string
	httpClient *http.Client
	nextID     uint64
}

// NewRPCClient creates a wallet RPC client against the given endpoint.
func NewRPCClient(url string, httpClient *http.Client) *RPCClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RPCClient{url: url, httpClient: httpClient}
}

func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&c.nextID, 1),
		Method:  method,
		Params:  params,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s request", method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build rpc request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "%s request failed", method)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read rpc response")
	}
	if httpResp.StatusCode != http.StatusOK {
		return errors.Errorf("%s returned http %d: %s", method, httpResp.StatusCode, string(body))
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return errors.Wrapf(err, "failed to unmarshal %s response", method)
	}
	if rpcResp.Error != nil {
		return errors.Wrapf(rpcResp.Error, "%s rejected", method)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return errors.Wrapf(err, "failed to unmarshal %s result", method)
		}
	}
	return nil
}

// GetSubAccounts enumerates delegated accounts provisioned for the origin.
func (c *RPCClient) GetSubAccounts(ctx context.Context, origin string) ([]SubAccount, error) {
	var result struct {
		SubAccounts []SubAccount `json:"subAccounts"`
	}
	params := []interface{}{map[string]string{"domain": origin}}
	if err := c.call(ctx, "wallet_getSubAccounts", params, &result); err != nil {
		return nil, err
	}
	return result.SubAccounts, nil
}

// AddSubAccount provisions a delegated account with a spend-permission grant.
func (c *RPCClient) AddSubAccount(ctx context.Context, req *AddSubAccountRequest) (*SubAccount, error) {
	var result SubAccount
	if err := c.call(ctx, "wallet_addSubAccount", []interface{}{req}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendCalls submits an atomic call bundle and returns the pollable bundle id.
func (c *RPCClient) SendCalls(ctx context.Context, req *SendCallsRequest) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, "wallet_sendCalls", []interface{}{req}, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", errors.New("wallet_sendCalls returned an empty bundle id")
	}
	return result.ID, nil
}

// GetCallsStatus polls a bundle by id.
func (c *RPCClient) GetCallsStatus(ctx context.Context, bundleID string) (*CallsStatus, error) {
	var result CallsStatus
	if err := c.call(ctx, "wallet_getCallsStatus", []interface{}{bundleID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PersonalSign asks the parent account to personal-sign the message.
func (c *RPCClient) PersonalSign(ctx context.Context, account common.Address, message []byte) (string, error) {
	var signature string
	params := []interface{}{hexutil.Encode(message), account.Hex()}
	if err := c.call(ctx, "personal_sign", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}
