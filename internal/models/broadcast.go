package models

import (
	"time"

	"gorm.io/gorm"
)

// Broadcast is one scheduled airing of a program, mirrored from the upstream feed.
type Broadcast struct {
	gorm.Model

	// Upstream identity
	BroadcastID  string `gorm:"index"` // upstream-assigned, stable
	ProgramKey   string `gorm:"uniqueIndex:idx_broadcast_day_program;size:10;not null"`
	BroadcastDay int    `gorm:"uniqueIndex:idx_broadcast_day_program;not null"` // YYYYMMDD

	// Editorial Metadata
	Title       string `gorm:"index"`
	Subtitle    string
	Description string
	Station     string `gorm:"size:20;index"`

	// Airing window
	Start time.Time `gorm:"index"`
	End   time.Time

	// Done is monotonic: once true the detail is final and never re-fetched.
	Done bool `gorm:"index"`

	// Loopstream (on-demand playback)
	LoopStreamID string
	LoopStart    time.Time
	LoopEnd      time.Time

	Items []BroadcastItem `gorm:"constraint:OnDelete:CASCADE"`
}

// BroadcastItem is a song/jingle/ad/news segment within a Broadcast.
type BroadcastItem struct {
	gorm.Model

	BroadcastID uint   `gorm:"uniqueIndex:idx_item_broadcast_item;not null"`
	ItemID      string `gorm:"uniqueIndex:idx_item_broadcast_item;size:64;not null"` // upstream id

	Title       string `gorm:"index"`
	Interpreter string `gorm:"index"`
	Type        string `gorm:"size:20"` // song, jingle, ad, news
	State       string `gorm:"size:20"` // scheduled, playing, completed

	Start time.Time
	End   time.Time

	// Derived once the parent's start time is known (milliseconds)
	StartOffset int64
	EndOffset   int64
	Duration    int64
}

// Offsets returns start/end relative to the broadcast start, in milliseconds.
func (b *Broadcast) Offsets(item *BroadcastItem) (int64, int64) {
	return item.Start.Sub(b.Start).Milliseconds(), item.End.Sub(b.Start).Milliseconds()
}
