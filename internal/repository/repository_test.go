package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/Sharvin27/contracts-management-aptosc5/internal/blobstore"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/classify"
	"github.com/Sharvin27/contracts-management-aptosc5/internal/ledger"
	"github.com/Sharvin27/contracts-management-aptosc5/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLedger struct {
	docs     []ledger.Document
	queryErr error
	queries  int

	submitErr error
	creator   string
	onSubmit  func()
}

func (f *fakeLedger) QueryAllDocuments(context.Context) ([]ledger.Document, error) {
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	docs := make([]ledger.Document, len(f.docs))
	copy(docs, f.docs)
	return docs, nil
}

func (f *fakeLedger) SubmitCreateDocument(_ context.Context, _ ledger.TransactionSigner, contentHash string, signers []string) (*ledger.TransactionResult, error) {
	if f.submitErr != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransactionRejected, f.submitErr)
	}

	var nextID ledger.U64 = 1
	for _, d := range f.docs {
		if d.ID >= nextID {
			nextID = d.ID + 1
		}
	}
	f.docs = append(f.docs, ledger.Document{
		ID:          nextID,
		ContentHash: contentHash,
		Creator:     f.creator,
		Signers:     signers,
	})
	if f.onSubmit != nil {
		f.onSubmit()
	}
	return &ledger.TransactionResult{Hash: "0xtxn", Success: true}, nil
}

type fakeStore struct {
	nextCID   string
	uploadErr error
	uploads   []string

	content  map[string][]byte
	fetchErr map[string]error
}

func (f *fakeStore) Upload(_ context.Context, _ string, content io.Reader, _ int64) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	io.Copy(io.Discard, content)
	f.uploads = append(f.uploads, f.nextCID)
	return f.nextCID, nil
}

func (f *fakeStore) Fetch(_ context.Context, cid string) ([]byte, string, error) {
	if err := f.fetchErr[cid]; err != nil {
		return nil, "", err
	}
	blob, ok := f.content[cid]
	if !ok {
		return nil, "", blobstore.ErrContentUnavailable
	}
	return blob, "text/plain", nil
}

type fakeClassifier struct {
	calls int
}

// Labels by keyword so tests can steer the category through blob content.
func (f *fakeClassifier) Classify(_ context.Context, content []byte, _ string) classify.Category {
	f.calls++
	text := string(content)
	switch {
	case strings.Contains(text, "agreement"):
		return classify.CategoryLegal
	case strings.Contains(text, "invoice"):
		return classify.CategoryFinancial
	default:
		return classify.CategoryOther
	}
}

func newTestRepo(chain *fakeLedger, store *fakeStore, classifier ContentClassifier) *Repository {
	if classifier == nil {
		classifier = &fakeClassifier{}
	}
	return New(chain, store, classifier, nil, zap.NewNop(), metrics.NewCollector())
}

func doc(id uint64, creator string, signers []string, signedBy []string, completed bool) ledger.Document {
	signatures := make([]ledger.Signature, len(signedBy))
	for i, s := range signedBy {
		signatures[i] = ledger.Signature{Signer: s, Timestamp: ledger.U64(1700000000 + i)}
	}
	return ledger.Document{
		ID:          ledger.U64(id),
		ContentHash: fmt.Sprintf("Qm%d", id),
		Creator:     creator,
		Signers:     signers,
		Signatures:  signatures,
		IsCompleted: completed,
	}
}

func TestEmptyLedger(t *testing.T) {
	repo := newTestRepo(&fakeLedger{}, &fakeStore{}, nil)

	owned, err := repo.ListOwned(context.Background(), "0xa")
	require.NoError(t, err)
	assert.Empty(t, owned)

	pending, err := repo.ListPendingForMe(context.Background(), "0xa")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListOwnedIsExactCreatorSubset(t *testing.T) {
	chain := &fakeLedger{docs: []ledger.Document{
		doc(1, "0xa", []string{"0xb"}, nil, false),
		doc(2, "0xb", []string{"0xa"}, nil, false),
		doc(3, "0xa", []string{"0xc"}, []string{"0xc"}, true),
	}}
	repo := newTestRepo(chain, &fakeStore{}, nil)

	all, err := repo.ListAll(context.Background())
	require.NoError(t, err)

	owned, err := repo.ListOwned(context.Background(), "0xa")
	require.NoError(t, err)

	var expected []ledger.Document
	for _, d := range all {
		if d.Creator == "0xa" {
			expected = append(expected, d)
		}
	}
	assert.Equal(t, expected, owned)

	// Idempotent under repeated calls with no intervening mutation.
	again, err := repo.ListOwned(context.Background(), "0xa")
	require.NoError(t, err)
	assert.Equal(t, owned, again)
}

func TestListPendingPredicate(t *testing.T) {
	chain := &fakeLedger{docs: []ledger.Document{
		doc(1, "0xa", []string{"0xb", "0xc"}, nil, false),      // pending for both
		doc(2, "0xa", []string{"0xb"}, []string{"0xb"}, false), // 0xb already signed
		doc(3, "0xa", []string{"0xb"}, nil, true),              // completed, defensively excluded
		doc(4, "0xa", []string{"0xc"}, nil, false),             // 0xb not invited
	}}
	repo := newTestRepo(chain, &fakeStore{}, nil)

	pending, err := repo.ListPendingForMe(context.Background(), "0xb")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ledger.U64(1), pending[0].ID)
}

func TestDocumentInvariantsOnLedgerData(t *testing.T) {
	chain := &fakeLedger{docs: []ledger.Document{
		doc(1, "0xa", []string{"0xb", "0xc"}, []string{"0xb"}, false),
		doc(2, "0xa", []string{"0xb"}, []string{"0xb"}, true),
	}}
	repo := newTestRepo(chain, &fakeStore{}, nil)

	docs, err := repo.ListAll(context.Background())
	require.NoError(t, err)

	for _, d := range docs {
		assert.LessOrEqual(t, len(d.Signatures), len(d.Signers))
		if d.IsCompleted {
			assert.Equal(t, len(d.Signers), len(d.Signatures))
		}
		seen := map[string]bool{}
		for _, sig := range d.Signatures {
			assert.False(t, seen[sig.Signer], "signer %s appears twice", sig.Signer)
			seen[sig.Signer] = true
		}
	}
}

func TestCreateThenViews(t *testing.T) {
	chain := &fakeLedger{creator: "0xa"}
	store := &fakeStore{nextCID: "QmNew"}
	repo := newTestRepo(chain, store, nil)

	id, err := repo.Create(context.Background(), Session{Address: "0xa"}, CreateRequest{
		FileName: "contract.pdf",
		Content:  bytes.NewReader([]byte("agreement text")),
		Size:     14,
		Signers:  []string{"0xb", "0xc"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	owned, err := repo.ListOwned(context.Background(), "0xa")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "QmNew", owned[0].ContentHash)

	pendingB, err := repo.ListPendingForMe(context.Background(), "0xb")
	require.NoError(t, err)
	assert.Len(t, pendingB, 1)

	pendingA, err := repo.ListPendingForMe(context.Background(), "0xa")
	require.NoError(t, err)
	assert.Empty(t, pendingA)
}

func TestSignatureProgression(t *testing.T) {
	chain := &fakeLedger{docs: []ledger.Document{
		doc(1, "0xa", []string{"0xb", "0xc"}, nil, false),
	}}
	repo := newTestRepo(chain, &fakeStore{}, nil)

	// 0xb signs out of band; the ledger now reports one signature and the
	// document is still incomplete.
	chain.docs[0].Signatures = []ledger.Signature{{Signer: "0xb", Timestamp: 1700000001}}

	pendingB, err := repo.ListPendingForMe(context.Background(), "0xb")
	require.NoError(t, err)
	assert.Empty(t, pendingB)

	pendingC, err := repo.ListPendingForMe(context.Background(), "0xc")
	require.NoError(t, err)
	assert.Len(t, pendingC, 1)
}

func TestCreateUploadFailure(t *testing.T) {
	chain := &fakeLedger{creator: "0xa"}
	store := &fakeStore{uploadErr: fmt.Errorf("%w: store unreachable", blobstore.ErrUploadFailed)}
	repo := newTestRepo(chain, store, nil)

	_, err := repo.Create(context.Background(), Session{Address: "0xa"}, CreateRequest{
		FileName: "f.pdf", Content: strings.NewReader("x"), Size: 1, Signers: []string{"0xb"},
	})
	assert.ErrorIs(t, err, blobstore.ErrUploadFailed)
	assert.Empty(t, chain.docs, "no transaction may be submitted after a failed upload")
}

func TestCreateTransactionRejectedLeavesOrphanedBlob(t *testing.T) {
	chain := &fakeLedger{creator: "0xa", submitErr: fmt.Errorf("wallet declined")}
	store := &fakeStore{nextCID: "Qm123"}
	repo := newTestRepo(chain, store, nil)

	_, err := repo.Create(context.Background(), Session{Address: "0xa"}, CreateRequest{
		FileName: "f.pdf", Content: strings.NewReader("x"), Size: 1, Signers: []string{"0xb"},
	})
	assert.ErrorIs(t, err, ledger.ErrTransactionRejected)

	// The upload went through and is not compensated; the ledger never saw
	// the create call.
	assert.Equal(t, []string{"Qm123"}, store.uploads)
	docs, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCreateSurvivesPostRefreshFailure(t *testing.T) {
	chain := &fakeLedger{creator: "0xa"}
	chain.onSubmit = func() {
		chain.queryErr = fmt.Errorf("%w: node flapped", ledger.ErrLedgerUnavailable)
	}
	repo := newTestRepo(chain, &fakeStore{nextCID: "QmNew"}, nil)

	id, err := repo.Create(context.Background(), Session{Address: "0xa"}, CreateRequest{
		FileName: "f.pdf", Content: strings.NewReader("x"), Size: 1, Signers: []string{"0xb"},
	})
	require.NoError(t, err, "the document exists on the ledger, only the view is stale")
	assert.Zero(t, id)
}

func TestFailedRefreshKeepsPreviousCache(t *testing.T) {
	chain := &fakeLedger{docs: []ledger.Document{
		doc(1, "0xa", []string{"0xb"}, nil, false),
	}}
	repo := newTestRepo(chain, &fakeStore{}, nil)

	require.NoError(t, repo.Refresh(context.Background()))
	require.Len(t, repo.Cached(), 1)

	chain.queryErr = fmt.Errorf("%w: timeout", ledger.ErrLedgerUnavailable)
	err := repo.Refresh(context.Background())
	assert.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
	assert.Len(t, repo.Cached(), 1, "a failed refresh must not corrupt the cached view")
}

func TestFindByID(t *testing.T) {
	chain := &fakeLedger{docs: []ledger.Document{
		doc(1, "0xa", []string{"0xb"}, nil, false),
		doc(5, "0xb", []string{"0xa"}, nil, false),
	}}
	repo := newTestRepo(chain, &fakeStore{}, nil)

	found, err := repo.FindByID(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "0xb", found.Creator)

	missing, err := repo.FindByID(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCategorizeAll(t *testing.T) {
	chain := &fakeLedger{docs: []ledger.Document{
		doc(1, "0xa", []string{"0xb"}, nil, false),
		doc(2, "0xa", []string{"0xb"}, nil, false),
		doc(3, "0xb", []string{"0xa"}, nil, false),
	}}
	store := &fakeStore{
		content: map[string][]byte{
			"Qm1": []byte("this agreement is binding"),
			"Qm2": []byte("invoice #42 due on receipt"),
		},
		fetchErr: map[string]error{
			"Qm3": fmt.Errorf("%w: gone", blobstore.ErrContentUnavailable),
		},
	}
	classifier := &fakeClassifier{}
	repo := newTestRepo(chain, store, classifier)

	grouped, err := repo.CategorizeAll(context.Background())
	require.NoError(t, err)

	require.Len(t, grouped[classify.CategoryLegal], 1)
	assert.Equal(t, ledger.U64(1), grouped[classify.CategoryLegal][0].ID)
	require.Len(t, grouped[classify.CategoryFinancial], 1)

	// Unfetchable content lands in "other" instead of erroring.
	require.Len(t, grouped[classify.CategoryOther], 1)
	assert.Equal(t, ledger.U64(3), grouped[classify.CategoryOther][0].ID)

	assert.Equal(t, 2, classifier.calls, "the oracle must not run for unfetchable blobs")
}

func TestCategorizeAllLabelsSharedContentOnce(t *testing.T) {
	shared := ledger.Document{ContentHash: "QmSame", Creator: "0xa", Signers: []string{"0xb"}}
	first, second := shared, shared
	first.ID = 1
	second.ID = 2
	chain := &fakeLedger{docs: []ledger.Document{first, second}}
	store := &fakeStore{
		content: map[string][]byte{"QmSame": []byte("this agreement is binding")},
	}
	classifier := &fakeClassifier{}
	repo := newTestRepo(chain, store, classifier)

	grouped, err := repo.CategorizeAll(context.Background())
	require.NoError(t, err)

	require.Len(t, grouped[classify.CategoryLegal], 2)
	assert.Equal(t, 1, classifier.calls, "identical content must be labeled once per run")
}

func TestAddressComparisonIgnoresHexCasing(t *testing.T) {
	chain := &fakeLedger{docs: []ledger.Document{
		doc(1, "0xAbCd", []string{"0xB"}, nil, false),
	}}
	repo := newTestRepo(chain, &fakeStore{}, nil)

	owned, err := repo.ListOwned(context.Background(), "0xabcd")
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	pending, err := repo.ListPendingForMe(context.Background(), "0xb")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// A signature recorded under different casing still counts as signed.
	chain.docs[0].Signatures = []ledger.Signature{{Signer: "0xB", Timestamp: 1700000001}}
	pending, err = repo.ListPendingForMe(context.Background(), "0xb")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestResolveCreatedID(t *testing.T) {
	docs := []ledger.Document{
		doc(1, "0xa", nil, nil, false),
		{ID: 7, Creator: "0xa", ContentHash: "QmX"},
		{ID: 9, Creator: "0xb", ContentHash: "QmX"},
	}
	assert.Equal(t, uint64(7), resolveCreatedID(docs, "0xa", "QmX"))
	assert.Equal(t, uint64(7), resolveCreatedID(docs, "0xA", "QmX"))
	assert.Equal(t, uint64(9), resolveCreatedID(docs, "0xb", "QmX"))
	assert.Zero(t, resolveCreatedID(docs, "0xc", "QmX"))
}
