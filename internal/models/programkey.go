package models

import (
	"time"

	"gorm.io/gorm"
)

// ProgramKey is the registry of known program identifiers, discovered
// opportunistically from the live view and the rolling broadcast list.
type ProgramKey struct {
	gorm.Model

	Key        string `gorm:"uniqueIndex;size:10;not null"`
	Name       string
	LastSeenAt time.Time `gorm:"index"`
}

// Metadata is an opaque key/value store for synchronization bookkeeping,
// e.g. last full/recent scrape timestamps.
type Metadata struct {
	Key       string `gorm:"primaryKey;size:100"`
	Value     string
	UpdatedAt time.Time
}
