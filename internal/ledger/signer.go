package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Sharvin27/contracts-management-aptosc5/internal/config"
	"go.uber.org/zap"
)

var ErrSigningDeclined = errors.New("signing declined by wallet")

// WalletBridgeSigner forwards entry-function payloads to the account owner's
// wallet agent, which signs and submits them. The bridge answers 403 when the
// user declines the prompt.
type WalletBridgeSigner struct {
	bridgeURL  string
	address    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWalletBridgeSigner(cfg config.WalletConfig, address string, logger *zap.Logger) *WalletBridgeSigner {
	return &WalletBridgeSigner{
		bridgeURL:  cfg.BridgeURL,
		address:    address,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger.With(zap.String("service", "wallet_bridge")),
	}
}

type bridgeRequest struct {
	Sender  string               `json:"sender"`
	Payload EntryFunctionPayload `json:"payload"`
}

func (s *WalletBridgeSigner) SignAndSubmit(ctx context.Context, payload EntryFunctionPayload) (*TransactionResult, error) {
	body, err := json.Marshal(bridgeRequest{Sender: s.address, Payload: payload})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.bridgeURL+"/v1/sign-and-submit", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		s.logger.Warn("Wallet declined signing request",
			zap.String("sender", s.address),
			zap.String("function", payload.Function))
		return nil, ErrSigningDeclined
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("wallet bridge returned status %d", resp.StatusCode)
	}

	var result TransactionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode bridge response: %w", err)
	}
	return &result, nil
}
