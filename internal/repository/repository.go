package repository

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Sharvin27/contracts-management-aptosc5/internal/classify"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/db/models"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/ledger"
	"github.com/Sharvin27/contracts-management-aptosc5/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LedgerClient is the read/write surface of the blockchain, which stays the
// single source of truth for document metadata and signature state.
type LedgerClient interface {
	QueryAllDocuments(ctx context.Context) ([]ledger.Document, error)
	SubmitCreateDocument(ctx context.Context, signer ledger.TransactionSigner, contentHash string, signers []string) (*ledger.TransactionResult, error)
}

// BlobStore is the content-addressable file store.
type BlobStore interface {
	Upload(ctx context.Context, name string, content io.Reader, size int64) (string, error)
	Fetch(ctx context.Context, cid string) ([]byte, string, error)
}

// ContentClassifier assigns a best-effort topical label. It never fails; any
// trouble maps to the "other" label inside the classifier.
type ContentClassifier interface {
	Classify(ctx context.Context, content []byte, mimeType string) classify.Category
}

// Session carries the connected account's identity and signing capability
// explicitly, so the repository never reads ambient wallet state.
type Session struct {
	Address string
	Signer  ledger.TransactionSigner
}

// CreateRequest describes a document creation: the file to pin and the
// ordered set of invited signer addresses.
type CreateRequest struct {
	FileName string
	Content  io.Reader
	Size     int64
	Signers  []string
}

// CategorizedDocument pairs a ledger document with its advisory label.
type CategorizedDocument struct {
	ledger.Document
	Category classify.Category `json:"category"`
}

// Repository maintains a read-mostly projection of the ledger's document set
// and coordinates document creation. The cache is replaced wholesale after
// each successful bulk query; it has no independent write path. Concurrent
// refreshes are not coalesced — the last response to arrive wins.
type Repository struct {
	ledger     LedgerClient
	store      BlobStore
	classifier ContentClassifier
	db         *gorm.DB
	logger     *zap.Logger
	metrics    *metrics.Collector

	mu     sync.RWMutex
	cached []ledger.Document
}

func New(
	ledgerClient LedgerClient,
	store BlobStore,
	classifier ContentClassifier,
	database *gorm.DB,
	logger *zap.Logger,
	collector *metrics.Collector,
) *Repository {
	return &Repository{
		ledger:     ledgerClient,
		store:      store,
		classifier: classifier,
		db:         database,
		logger:     logger.With(zap.String("service", "document_repository")),
		metrics:    collector,
	}
}

// ListAll fetches the full document set from the ledger and replaces the
// cached projection. On failure the previous cache is left in place and the
// caller decides whether to re-trigger; nothing is retried here.
func (r *Repository) ListAll(ctx context.Context) ([]ledger.Document, error) {
	start := time.Now()

	docs, err := r.ledger.QueryAllDocuments(ctx)
	if err != nil {
		r.logger.Error("Bulk document query failed", zap.Error(err))
		return nil, err
	}

	r.mu.Lock()
	r.cached = docs
	r.mu.Unlock()

	r.metrics.IncrementCounter("ledger_queries")
	r.metrics.ObserveLatency("list_all", time.Since(start))
	return docs, nil
}

// Refresh re-runs the bulk query. Safe to call at any time.
func (r *Repository) Refresh(ctx context.Context) error {
	_, err := r.ListAll(ctx)
	return err
}

// Cached returns a snapshot of the last successful projection.
func (r *Repository) Cached() []ledger.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]ledger.Document, len(r.cached))
	copy(snapshot, r.cached)
	return snapshot
}

// ListOwned returns the documents created by the account, in ledger order.
func (r *Repository) ListOwned(ctx context.Context, account string) ([]ledger.Document, error) {
	docs, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	owned := make([]ledger.Document, 0, len(docs))
	for _, d := range docs {
		if strings.EqualFold(d.Creator, account) {
			owned = append(owned, d)
		}
	}
	return owned, nil
}

// ListPendingForMe returns the documents awaiting the account's signature:
// the account is an invited signer, has not signed, and the document is not
// completed. All three conditions must hold.
func (r *Repository) ListPendingForMe(ctx context.Context, account string) ([]ledger.Document, error) {
	docs, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]ledger.Document, 0, len(docs))
	for _, d := range docs {
		if d.PendingFor(account) {
			pending = append(pending, d)
		}
	}
	return pending, nil
}

// Create runs the creation saga: pin the file, submit the create transaction,
// refresh the projection. The steps are independent and nothing compensates a
// partial failure — a successful upload followed by a rejected transaction
// leaves an orphaned blob in the store, by design.
func (r *Repository) Create(ctx context.Context, session Session, req CreateRequest) (uint64, error) {
	start := time.Now()

	cid, err := r.store.Upload(ctx, req.FileName, req.Content, req.Size)
	if err != nil {
		r.logger.Error("Upload step failed", zap.Error(err))
		return 0, err
	}

	if _, err := r.ledger.SubmitCreateDocument(ctx, session.Signer, cid, req.Signers); err != nil {
		r.logger.Error("Create transaction failed after upload",
			zap.Error(err),
			zap.String("orphaned_cid", cid))
		return 0, err
	}

	r.metrics.IncrementCounter("documents_created")
	r.metrics.ObserveSize("document_size", float64(req.Size))
	r.metrics.ObserveLatency("document_create", time.Since(start))

	docs, err := r.ListAll(ctx)
	if err != nil {
		// The document exists on the ledger; only the local view is stale.
		r.logger.Warn("Post-create refresh failed", zap.Error(err), zap.String("cid", cid))
		return 0, nil
	}

	return resolveCreatedID(docs, session.Address, cid), nil
}

// resolveCreatedID finds the id the ledger assigned: the newest document by
// this creator carrying the pinned content hash. Ids are never reused, so the
// highest match is the one just created.
func resolveCreatedID(docs []ledger.Document, creator, cid string) uint64 {
	var id uint64
	for _, d := range docs {
		if strings.EqualFold(d.Creator, creator) && d.ContentHash == cid && uint64(d.ID) >= id {
			id = uint64(d.ID)
		}
	}
	return id
}

// FetchContent resolves a document's blob for viewing.
func (r *Repository) FetchContent(ctx context.Context, cid string) ([]byte, string, error) {
	return r.store.Fetch(ctx, cid)
}

// FindByID looks a document up in a fresh projection.
func (r *Repository) FindByID(ctx context.Context, id uint64) (*ledger.Document, error) {
	docs, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if uint64(docs[i].ID) == id {
			return &docs[i], nil
		}
	}
	return nil, nil
}

// CategorizeAll labels every document and groups the set by category.
// Labels are advisory: a document whose content cannot be fetched or
// classified lands in "other" rather than failing the whole view.
func (r *Repository) CategorizeAll(ctx context.Context) (map[classify.Category][]CategorizedDocument, error) {
	docs, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	// Blobs are immutable, so one label per content identifier is enough.
	// The in-run memo keeps that true even when the persistent cache is
	// not configured.
	grouped := make(map[classify.Category][]CategorizedDocument)
	labeled := make(map[string]classify.Category)
	for _, d := range docs {
		category, ok := labeled[d.ContentHash]
		if !ok {
			category = r.categorize(ctx, d)
			labeled[d.ContentHash] = category
		}
		grouped[category] = append(grouped[category], CategorizedDocument{Document: d, Category: category})
	}

	r.metrics.IncrementCounter("categorize_runs")
	return grouped, nil
}

func (r *Repository) categorize(ctx context.Context, doc ledger.Document) classify.Category {
	if cached, ok := r.cachedCategory(doc.ContentHash); ok {
		return cached
	}

	content, mimeType, err := r.store.Fetch(ctx, doc.ContentHash)
	if err != nil {
		r.logger.Warn("Content fetch failed during categorization",
			zap.Error(err),
			zap.Uint64("doc_id", uint64(doc.ID)))
		return classify.CategoryOther
	}

	category := r.classifier.Classify(ctx, content, mimeType)
	r.storeCategory(doc.ContentHash, category)
	r.metrics.IncrementCounter("documents_classified")
	return category
}

func (r *Repository) cachedCategory(cid string) (classify.Category, bool) {
	if r.db == nil {
		return "", false
	}

	var record models.DocumentCategory
	err := r.db.Where("cid = ?", cid).First(&record).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Warn("Category cache lookup failed", zap.Error(err))
		}
		return "", false
	}

	if category, ok := classify.ParseCategory(record.Category); ok {
		return category, true
	}
	return "", false
}

func (r *Repository) storeCategory(cid string, category classify.Category) {
	if r.db == nil {
		return
	}

	record := models.DocumentCategory{CID: cid, Category: string(category)}
	if err := r.db.Create(&record).Error; err != nil {
		// Cache misses are cheap; losing a write only means re-classifying.
		r.logger.Warn("Category cache write failed", zap.Error(err), zap.String("cid", cid))
	}
}
