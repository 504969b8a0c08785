package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/Sharvin27/contracts-management-aptosc5/internal/config"
	"go.uber.org/zap"
)

var (
	ErrUploadFailed       = errors.New("blob upload failed")
	ErrContentUnavailable = errors.New("content unavailable")
)

// Client pins files to the content-addressable store and fetches blob bytes
// back through the public gateway. The store's addressing is trusted: no
// integrity check is made against the returned identifier.
type Client struct {
	pinURL      string
	gatewayURL  string
	apiKey      string
	secretKey   string
	maxFileSize int64
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewClient(cfg config.BlobStoreConfig, logger *zap.Logger) *Client {
	return &Client{
		pinURL:      cfg.PinURL,
		gatewayURL:  cfg.GatewayURL,
		apiKey:      cfg.APIKey,
		secretKey:   cfg.SecretKey,
		maxFileSize: cfg.MaxFileSize,
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		logger:      logger.With(zap.String("service", "blob_store")),
	}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Upload pins the file and returns its content identifier. Files above the
// configured ceiling are rejected before any bytes go on the wire.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader, size int64) (string, error) {
	if size > c.maxFileSize {
		return "", fmt.Errorf("%w: file size %d exceeds limit %d", ErrUploadFailed, size, c.maxFileSize)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	metadata, _ := json.Marshal(map[string]string{"name": name})
	if err := writer.WriteField("pinataMetadata", string(metadata)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pinURL, &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: pin endpoint returned status %d", ErrUploadFailed, resp.StatusCode)
	}

	var pinned pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return "", fmt.Errorf("%w: decode pin response: %v", ErrUploadFailed, err)
	}
	if pinned.IpfsHash == "" {
		return "", fmt.Errorf("%w: pin response missing content identifier", ErrUploadFailed)
	}

	c.logger.Info("File pinned", zap.String("cid", pinned.IpfsHash), zap.Int64("size", size))
	return pinned.IpfsHash, nil
}

// Fetch resolves a content identifier through the gateway and returns the
// blob bytes with the reported content type.
func (c *Client) Fetch(ctx context.Context, cid string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gatewayURL+"/ipfs/"+cid, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: gateway returned status %d for %s", ErrContentUnavailable, resp.StatusCode, cid)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	return content, resp.Header.Get("Content-Type"), nil
}
