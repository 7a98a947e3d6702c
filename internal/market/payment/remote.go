package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/faults"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/wallet"
)

// RemoteManager talks to the external payment/session-manager service. The
// service owns all contract logic: it prepares the raw session transactions,
// and resolves the minted identifiers from the confirmed receipts. This client
// only broadcasts the prepared calls through the delegated wallet.
type RemoteManager struct {
	baseURL     string
	httpClient  *http.Client
	broadcaster Broadcaster
}

func NewRemoteManager(baseURL string, timeout time.Duration, broadcaster Broadcaster) *RemoteManager {
	return &RemoteManager{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		broadcaster: broadcaster,
	}
}

type preparedTx struct {
	To    common.Address `json:"to"`
	Value string         `json:"value"`
	Data  hexutil.Bytes  `json:"data"`
}

type managerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type prepareStartRequest struct {
	Host          common.Address  `json:"host"`
	Endpoint      string          `json:"endpoint"`
	ModelID       string          `json:"modelId"`
	Deposit       string          `json:"deposit"`
	PricePerToken string          `json:"pricePerToken"`
	PaymentToken  *common.Address `json:"paymentToken,omitempty"`
	ProofInterval int             `json:"proofInterval"`
	MaxDuration   int64           `json:"maxDurationSeconds"`
}

type confirmStartRequest struct {
	TxHash common.Hash `json:"txHash"`
}

type confirmStartResponse struct {
	SessionID string `json:"sessionId"`
	JobID     string `json:"jobId"`
}

// StartSession prepares, broadcasts, and confirms the on-chain session start.
func (m *RemoteManager) StartSession(ctx context.Context, req *StartSessionRequest) (*StartSessionResult, error) {
	prepared := new(preparedTx)
	err := m.post(ctx, "/api/v1/sessions/prepare", &prepareStartRequest{
		Host:          req.Host,
		Endpoint:      req.Endpoint,
		ModelID:       req.ModelID,
		Deposit:       req.Deposit.String(),
		PricePerToken: req.PricePerToken.String(),
		PaymentToken:  req.PaymentToken,
		ProofInterval: req.ProofInterval,
		MaxDuration:   int64(req.MaxDuration / time.Second),
	}, prepared)
	if err != nil {
		return nil, err
	}

	record, err := m.broadcast(ctx, prepared)
	if err != nil {
		return nil, err
	}

	confirmed := new(confirmStartResponse)
	if err := m.post(ctx, "/api/v1/sessions/confirm", &confirmStartRequest{TxHash: record.Hash}, confirmed); err != nil {
		return nil, err
	}

	jobID, ok := new(big.Int).SetString(confirmed.JobID, 10)
	if !ok {
		return nil, errors.Errorf("session manager returned malformed job id %q", confirmed.JobID)
	}

	log.Debug().
		Str("session_id", confirmed.SessionID).
		Str("tx_hash", record.Hash.Hex()).
		Msg("Session start confirmed by payment manager")

	return &StartSessionResult{
		SessionID: confirmed.SessionID,
		JobID:     jobID,
		TxHash:    record.Hash,
	}, nil
}

// EndSession prepares and broadcasts the completion call. Settlement split and
// refunds happen inside the contract; this call only triggers them.
func (m *RemoteManager) EndSession(ctx context.Context, sessionID string) error {
	prepared := new(preparedTx)
	path := fmt.Sprintf("/api/v1/sessions/%s/end/prepare", sessionID)
	if err := m.post(ctx, path, struct{}{}, prepared); err != nil {
		return err
	}

	record, err := m.broadcast(ctx, prepared)
	if err != nil {
		return err
	}

	path = fmt.Sprintf("/api/v1/sessions/%s/end/confirm", sessionID)
	return m.post(ctx, path, &confirmStartRequest{TxHash: record.Hash}, nil)
}

func (m *RemoteManager) broadcast(ctx context.Context, prepared *preparedTx) (*wallet.TransactionRecord, error) {
	value := big.NewInt(0)
	if prepared.Value != "" {
		parsed, ok := new(big.Int).SetString(prepared.Value, 10)
		if !ok {
			return nil, errors.Errorf("session manager returned malformed tx value %q", prepared.Value)
		}
		value = parsed
	}

	record, err := m.broadcaster.SendTransaction(ctx, &wallet.TxRequest{
		To:    prepared.To,
		Value: value,
		Data:  prepared.Data,
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (m *RemoteManager) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session manager request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build session manager request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := m.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "session manager request failed")
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read session manager response")
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return classifyManagerError(res.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to decode session manager response")
	}
	return nil
}

// classifyManagerError prefers the service's structured error codes and keeps
// the raw message for the substring fallback when no code is present.
func classifyManagerError(status int, body []byte) error {
	var wrapped struct {
		Error managerError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Code != "" {
		e := &wrapped.Error
		switch e.Code {
		case "SIGNER_NOT_REGISTERED":
			return faults.NewTransientChainRace("signer registration still propagating", errors.New(e.Message))
		case "BALANCE_NOT_SYNCED":
			return faults.NewTransientChainRace("delegated balance still syncing", errors.New(e.Message))
		case "SPEND_AUTHORITY_EXHAUSTED":
			return faults.NewSpendAuthorityExhausted("delegated spend authority exhausted", errors.New(e.Message))
		default:
			return errors.Errorf("session manager error %s: %s", e.Code, e.Message)
		}
	}
	return errors.Errorf("session manager returned status %d: %s", status, string(body))
}
