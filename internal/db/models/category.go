package models

import (
	"gorm.io/gorm"
)

// DocumentCategory caches a classification result per content identifier.
// Blobs are immutable, so identical content never needs to hit the oracle
// twice. This is the only locally persisted state; document metadata always
// round-trips through the ledger.
type DocumentCategory struct {
	gorm.Model
	CID       string `gorm:"column:cid;uniqueIndex;not null"`
	Category  string `gorm:"not null"`
	ModelName string
}
