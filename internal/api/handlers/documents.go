package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sharvin27/contracts-management-aptosc5/internal/api/middleware"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/blobstore"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/ledger"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignerFactory builds the signing capability for a connected account. The
// production factory wires the wallet bridge; tests substitute fakes.
type SignerFactory func(address string) ledger.TransactionSigner

type DocumentHandler struct {
	repo      *repository.Repository
	signerFor SignerFactory
	baseURL   string
	logger    *zap.Logger
}

func NewDocumentHandler(
	repo *repository.Repository,
	signerFor SignerFactory,
	baseURL string,
	logger *zap.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		repo:      repo,
		signerFor: signerFor,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger.With(zap.String("handler", "document")),
	}
}

// statusFor maps the workflow's error taxonomy onto HTTP statuses. Failures
// are reported once and never retried here; the client re-triggers manually.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrTransactionRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, blobstore.ErrUploadFailed):
		return http.StatusBadGateway
	case errors.Is(err, blobstore.ErrContentUnavailable):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.repo.ListAll(c.Request.Context())
	if err != nil {
		h.logger.Error("list documents failed", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "could not reach the ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) ListOwned(c *gin.Context) {
	account := middleware.Account(c)

	docs, err := h.repo.ListOwned(c.Request.Context(), account)
	if err != nil {
		h.logger.Error("list owned failed", zap.Error(err), zap.String("account", account))
		c.JSON(statusFor(err), gin.H{"error": "could not reach the ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) ListPending(c *gin.Context) {
	account := middleware.Account(c)

	docs, err := h.repo.ListPendingForMe(c.Request.Context(), account)
	if err != nil {
		h.logger.Error("list pending failed", zap.Error(err), zap.String("account", account))
		c.JSON(statusFor(err), gin.H{"error": "could not reach the ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// CreateDocument accepts a multipart form: the file plus one or more
// "signers" fields (comma separation works too). The upload and the ledger
// transaction are independent steps; a failure in between is reported as a
// creation failure and nothing is rolled back.
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	account := middleware.Account(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "choose a file to upload"})
		return
	}

	signers := splitSigners(c.PostFormArray("signers"))
	if len(signers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one signer address is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer f.Close()

	session := repository.Session{Address: account, Signer: h.signerFor(account)}
	id, err := h.repo.Create(c.Request.Context(), session, repository.CreateRequest{
		FileName: fileHeader.Filename,
		Content:  f,
		Size:     fileHeader.Size,
		Signers:  signers,
	})
	if err != nil {
		h.logger.Error("create document failed", zap.Error(err), zap.String("account", account))
		c.JSON(statusFor(err), gin.H{"error": "document creation failed"})
		return
	}

	// id 0 means the transaction landed but the post-create refresh did
	// not; the client refreshes later to learn the assigned id.
	c.JSON(http.StatusCreated, gin.H{"id": id, "resolved": id != 0})
}

func (h *DocumentHandler) GetContent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	doc, err := h.repo.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "could not reach the ledger"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	content, contentType, err := h.repo.FetchContent(c.Request.Context(), doc.ContentHash)
	if err != nil {
		h.logger.Error("fetch content failed", zap.Error(err), zap.String("cid", doc.ContentHash))
		c.JSON(statusFor(err), gin.H{"error": "content unavailable"})
		return
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, content)
}

// ShareLink mints the signing link for a document. The SPA puts it on the
// clipboard; nothing is stored or transmitted server-side.
func (h *DocumentHandler) ShareLink(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	doc, err := h.repo.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "could not reach the ledger"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url": h.baseURL + "/sign/" + strconv.FormatUint(id, 10),
	})
}

func (h *DocumentHandler) RefreshCache(c *gin.Context) {
	if err := h.repo.Refresh(c.Request.Context()); err != nil {
		h.logger.Error("refresh failed", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "refresh failed, previous view kept"})
		return
	}
	c.Status(http.StatusNoContent)
}

func splitSigners(fields []string) []string {
	signers := make([]string, 0, len(fields))
	for _, field := range fields {
		for _, address := range strings.Split(field, ",") {
			if address = strings.ToLower(strings.TrimSpace(address)); address != "" {
				signers = append(signers, address)
			}
		}
	}
	return signers
}
