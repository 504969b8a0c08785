package handlers

import (
	"net/http"

	"github.com/Sharvin27/contracts-management-aptosc5/internal/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CategoryHandler struct {
	repo   *repository.Repository
	logger *zap.Logger
}

func NewCategoryHandler(repo *repository.Repository, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{
		repo:   repo,
		logger: logger.With(zap.String("handler", "category")),
	}
}

// ListCategorized groups the full document set by topical label. A document
// the oracle cannot label shows up under "other"; only a ledger failure makes
// this endpoint error.
func (h *CategoryHandler) ListCategorized(c *gin.Context) {
	grouped, err := h.repo.CategorizeAll(c.Request.Context())
	if err != nil {
		h.logger.Error("categorize failed", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "could not reach the ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": grouped})
}
