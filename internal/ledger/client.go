package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Sharvin27/contracts-management-aptosc5/internal/config"
	"go.uber.org/zap"
)

var (
	ErrLedgerUnavailable   = errors.New("ledger unavailable")
	ErrTransactionRejected = errors.New("transaction rejected")
)

// EntryFunctionPayload is the wire form of an entry-function call, shared
// between view queries and signed transaction submissions.
type EntryFunctionPayload struct {
	Function      string        `json:"function"`
	TypeArguments []string      `json:"type_arguments"`
	Arguments     []interface{} `json:"arguments"`
}

type TransactionResult struct {
	Hash     string `json:"hash"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
}

// TransactionSigner submits an entry-function payload through an
// authenticated signing session. Signing itself happens outside this service:
// the production implementation forwards to the user's wallet agent.
type TransactionSigner interface {
	SignAndSubmit(ctx context.Context, payload EntryFunctionPayload) (*TransactionResult, error)
}

// Client reads and writes document state against the fullnode. Reads need no
// wallet; writes go through a TransactionSigner.
type Client struct {
	nodeURL       string
	moduleAddress string
	moduleName    string
	httpClient    *http.Client
	logger        *zap.Logger
}

func NewClient(cfg config.LedgerConfig, logger *zap.Logger) *Client {
	return &Client{
		nodeURL:       cfg.NodeURL,
		moduleAddress: cfg.ModuleAddress,
		moduleName:    cfg.ModuleName,
		httpClient:    &http.Client{Timeout: cfg.RequestTimeout},
		logger:        logger.With(zap.String("service", "ledger_client")),
	}
}

func (c *Client) entryFunction(name string) string {
	return fmt.Sprintf("%s::%s::%s", c.moduleAddress, c.moduleName, name)
}

// QueryAllDocuments calls the get_all_documents view function. The decode is
// deliberately lenient: a malformed or empty response body is an empty
// document set, only transport and HTTP-level failures are errors.
func (c *Client) QueryAllDocuments(ctx context.Context) ([]Document, error) {
	payload := EntryFunctionPayload{
		Function:      c.entryFunction("get_all_documents"),
		TypeArguments: []string{},
		Arguments:     []interface{}{},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode view payload: %v", ErrLedgerUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL+"/v1/view", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: view returned status %d", ErrLedgerUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	docs := ParseDocumentList(raw)
	c.logger.Debug("Fetched document set", zap.Int("count", len(docs)))
	return docs, nil
}

// SubmitCreateDocument submits a create_document transaction through the
// given signer. The transaction sender becomes the creator; the ledger
// rejects malformed signer addresses on-chain.
func (c *Client) SubmitCreateDocument(ctx context.Context, signer TransactionSigner, contentHash string, signers []string) (*TransactionResult, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: no signing session", ErrTransactionRejected)
	}

	payload := EntryFunctionPayload{
		Function:      c.entryFunction("create_document"),
		TypeArguments: []string{},
		Arguments:     []interface{}{contentHash, signers},
	}

	result, err := signer.SignAndSubmit(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionRejected, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrTransactionRejected, result.VMStatus)
	}

	c.logger.Info("Create transaction committed",
		zap.String("hash", result.Hash),
		zap.String("content_hash", contentHash),
		zap.Int("signers", len(signers)))
	return result, nil
}
