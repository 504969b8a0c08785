package ledger

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// U64 decodes the ledger's u64 encoding, which arrives as a JSON string on
// view responses but as a bare number from some indexers.
type U64 uint64

func (u *U64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	value, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return err
	}
	*u = U64(value)
	return nil
}

func (u U64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(u), 10))), nil
}

// Signature is one completed co-signature: who signed and when. The ledger
// appends at most one entry per distinct signer.
type Signature struct {
	Signer    string `json:"signer"`
	Timestamp U64    `json:"timestamp"`
}

// Document is the ledger's record for a managed document. All fields except
// signatures and is_completed are fixed at creation time.
type Document struct {
	ID          U64         `json:"id"`
	ContentHash string      `json:"content_hash"`
	Creator     string      `json:"creator"`
	Signers     []string    `json:"signers"`
	Signatures  []Signature `json:"signatures"`
	IsCompleted bool        `json:"is_completed"`
}

// Address comparisons are case-insensitive: wallets and indexers disagree on
// hex casing, and 0xB and 0xb are the same account.
func (d Document) HasSigner(address string) bool {
	for _, s := range d.Signers {
		if strings.EqualFold(s, address) {
			return true
		}
	}
	return false
}

func (d Document) SignedBy(address string) bool {
	for _, s := range d.Signatures {
		if strings.EqualFold(s.Signer, address) {
			return true
		}
	}
	return false
}

// PendingFor reports whether the document awaits a signature from the given
// address: invited, not yet signed, and not completed. The completion check is
// redundant when the ledger's invariant holds but is enforced anyway.
func (d Document) PendingFor(address string) bool {
	return d.HasSigner(address) && !d.SignedBy(address) && !d.IsCompleted
}

// ParseDocumentList decodes a view-function response into a document list.
// A view call returns a JSON array of return values whose first element is
// the list itself. Anything other than a non-empty array decodes to an empty
// list rather than an error; only transport failures are treated as errors,
// and that happens before this function is reached.
func ParseDocumentList(raw []byte) []Document {
	var returns []json.RawMessage
	if err := json.Unmarshal(raw, &returns); err != nil {
		return []Document{}
	}
	if len(returns) == 0 {
		return []Document{}
	}

	var docs []Document
	if err := json.Unmarshal(returns[0], &docs); err != nil {
		return []Document{}
	}
	if docs == nil {
		return []Document{}
	}
	return docs
}
