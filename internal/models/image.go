package models

import "gorm.io/gorm"

const (
	ResolutionHigh = "high"
	ResolutionLow  = "low"

	EntityBroadcast     = "broadcast"
	EntityBroadcastItem = "broadcast_item"
)

// Image is one stored binary asset, identified by a hash of its bytes.
// Dedup is global: identical bytes map to the same row no matter which
// entity referenced them first.
type Image struct {
	gorm.Model

	Hash           string `gorm:"uniqueIndex:idx_image_hash_res;size:64;not null"`
	ResolutionType string `gorm:"uniqueIndex:idx_image_hash_res;size:10;not null"`

	Width     int
	Height    int
	SizeBytes int64
	Path      string `gorm:"size:500"` // key inside the image bucket
}

// ImageReference joins an Image to an owning entity. An Image with zero
// references is an orphan and eligible for cleanup.
//
// One owner may hold several pictures per resolution (one per picture
// group), so uniqueness includes the image itself; duplicates of the
// exact same link are collapsed on insert.
type ImageReference struct {
	gorm.Model

	ImageID        uint   `gorm:"uniqueIndex:idx_imgref_owner;not null"`
	EntityType     string `gorm:"uniqueIndex:idx_imgref_owner;size:20;not null"`
	EntityID       uint   `gorm:"uniqueIndex:idx_imgref_owner;not null"`
	ResolutionType string `gorm:"uniqueIndex:idx_imgref_owner;size:10;not null"`
}
