package images

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding; upstream mixes both
	"log"

	"golang.org/x/image/draw"
	"gorm.io/gorm"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/config"
	database "github.com/CEOBancoBrasileiro/fm4-api-backend/internal/db"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/feed"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/models"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/storage"
)

// Store downloads, hashes, resizes and persists images exactly once per
// (content, resolution) pair. Ownership is tracked through ImageReference
// rows so identical bytes are shared across broadcasts and items.
type Store struct {
	db       *gorm.DB
	feed     feed.API
	files    *storage.Client
	maxWidth int
}

func New(cfg *config.Config, db *database.Client, feedClient feed.API, files *storage.Client) *Store {
	return &Store{
		db:       db.DB,
		feed:     feedClient,
		files:    files,
		maxWidth: cfg.Images.MaxWidth,
	}
}

// ProcessEntityImages ingests every picture group of one owning entity.
// Entities are processed once: if the owner already has any reference
// rows, the call is a no-op no matter how often it is re-scraped.
func (s *Store) ProcessEntityImages(entityType string, entityID uint, groups []feed.ImageGroup) error {
	if len(groups) == 0 {
		return nil
	}

	var existing int64
	err := s.db.Model(&models.ImageReference{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Count(&existing).Error
	if err != nil {
		return err
	}
	if existing > 0 {
		return nil // already ingested for this owner
	}

	for _, group := range groups {
		if len(group.Versions) == 0 {
			continue
		}
		if err := s.processGroup(entityType, entityID, group); err != nil {
			// One bad picture never takes down the scrape of its owner.
			log.Printf("⚠️ Image ingest failed for %s/%d: %v", entityType, entityID, err)
		}
	}
	return nil
}

func (s *Store) processGroup(entityType string, entityID uint, group feed.ImageGroup) error {
	high, low := selectVariants(group.Versions)

	highImg, err := s.ingest(high.URL, models.ResolutionHigh, nil)
	if err != nil {
		return err
	}
	if err := s.addReference(entityType, entityID, models.ResolutionHigh, highImg.ID); err != nil {
		return err
	}

	// Low variant: identical bytes reuse the high row outright, the
	// reference still records the "low" intent.
	lowImg := highImg
	if low.URL != high.URL {
		lowImg, err = s.ingest(low.URL, models.ResolutionLow, highImg)
		if err != nil {
			return err
		}
	}
	return s.addReference(entityType, entityID, models.ResolutionLow, lowImg.ID)
}

// selectVariants picks the widest rendition as the high-resolution source
// and the narrowest as the low-resolution source. A single rendition
// serves both.
func selectVariants(versions []feed.ImageVersion) (high, low feed.ImageVersion) {
	high, low = versions[0], versions[0]
	for _, v := range versions[1:] {
		if v.Width > high.Width {
			high = v
		}
		if v.Width < low.Width {
			low = v
		}
	}
	return high, low
}

// ingest downloads one rendition and returns the Image row for its bytes,
// creating it on first sight. alias, when set, is returned directly if the
// downloaded bytes hash to the same content (the binary-level dedup path).
func (s *Store) ingest(url, resolution string, alias *models.Image) (*models.Image, error) {
	data, err := s.feed.DownloadBinary(url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if alias != nil && alias.Hash == hash {
		return alias, nil
	}

	// Reuse path: same bytes seen before under this resolution.
	var img models.Image
	err = s.db.Where("hash = ? AND resolution_type = ?", hash, resolution).First(&img).Error
	if err == nil {
		return &img, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}

	stored := data
	bounds := decoded.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	// Only the high-resolution variant is capped; the low one is already
	// the smallest rendition upstream offers.
	if resolution == models.ResolutionHigh && width > s.maxWidth {
		scaled := downscale(decoded, s.maxWidth)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: 85}); err != nil {
			return nil, err
		}
		stored = buf.Bytes()
		width = scaled.Bounds().Dx()
		height = scaled.Bounds().Dy()
	}

	key := fmt.Sprintf("%s_%s.jpg", hash, resolution)
	if err := s.files.PutImage(key, stored, "image/jpeg"); err != nil {
		return nil, err
	}

	img = models.Image{
		Hash:           hash,
		ResolutionType: resolution,
		Width:          width,
		Height:         height,
		SizeBytes:      int64(len(stored)),
		Path:           key,
	}
	if err := s.db.Create(&img).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

// addReference links an owner to an image under one resolution intent.
// The same link requested twice (groups deduplicating to identical
// bytes) collapses to a single row.
func (s *Store) addReference(entityType string, entityID uint, resolution string, imageID uint) error {
	ref := models.ImageReference{
		ImageID:        imageID,
		EntityType:     entityType,
		EntityID:       entityID,
		ResolutionType: resolution,
	}
	return s.db.Where(&ref).FirstOrCreate(&ref).Error
}

// downscale shrinks src to maxWidth, preserving the aspect ratio.
func downscale(src image.Image, maxWidth int) image.Image {
	b := src.Bounds()
	height := b.Dy() * maxWidth / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
