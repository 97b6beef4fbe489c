package images

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/config"
	database "github.com/CEOBancoBrasileiro/fm4-api-backend/internal/db"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/feed"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/models"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/storage"
)

// SetupInMemoryDB creates a throwaway DB for testing
func SetupInMemoryDB(t *testing.T) *database.Client {
	d, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	d.AutoMigrate(&models.Image{}, &models.ImageReference{})
	return &database.Client{DB: d}
}

// binaryFeed only serves DownloadBinary; the store never calls the rest.
type binaryFeed struct {
	binaries  map[string][]byte
	downloads int
}

func (f *binaryFeed) GetLive() ([]feed.LiveBroadcast, error)          { return nil, nil }
func (f *binaryFeed) GetBroadcasts() ([]feed.BroadcastDayList, error) { return nil, nil }
func (f *binaryFeed) GetBroadcastDetail(string, int) (*feed.BroadcastDetail, error) {
	return nil, feed.ErrNotFound
}

func (f *binaryFeed) DownloadBinary(url string) ([]byte, error) {
	f.downloads++
	if b, ok := f.binaries[url]; ok {
		return b, nil
	}
	return nil, feed.ErrNotFound
}

func pngBytes(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x % 256), A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func setupStore(t *testing.T, ff *binaryFeed, maxWidth int) (*Store, *database.Client, *storage.Client) {
	cfg := &config.Config{}
	cfg.Images.MaxWidth = maxWidth
	cfg.Images.Bucket = "images"

	db := SetupInMemoryDB(t)
	files := storage.NewWithProvider(storage.NewLocalProvider(t.TempDir()), cfg.Images.Bucket)
	return New(cfg, db, ff, files), db, files
}

func twoVariantGroup(highURL, lowURL string) []feed.ImageGroup {
	return []feed.ImageGroup{{
		Category: "cover",
		Versions: []feed.ImageVersion{
			{URL: lowURL, Width: 100},
			{URL: highURL, Width: 400},
		},
	}}
}

func TestImageDedupAcrossEntities(t *testing.T) {
	// 1. Two owners, byte-identical remote images
	ff := &binaryFeed{binaries: map[string][]byte{
		"http://img/high.png": pngBytes(t, 400, 200),
		"http://img/low.png":  pngBytes(t, 100, 50),
	}}
	s, db, _ := setupStore(t, ff, 1024)

	groups := twoVariantGroup("http://img/high.png", "http://img/low.png")
	if err := s.ProcessEntityImages(models.EntityBroadcast, 1, groups); err != nil {
		t.Fatalf("first owner failed: %v", err)
	}
	if err := s.ProcessEntityImages(models.EntityBroadcastItem, 7, groups); err != nil {
		t.Fatalf("second owner failed: %v", err)
	}

	// 2. Exactly one Image row per (hash, resolution)
	var imageCount int64
	db.DB.Model(&models.Image{}).Count(&imageCount)
	if imageCount != 2 {
		t.Errorf("expected 2 image rows (high+low), got %d", imageCount)
	}

	// 3. Each owner holds its own references
	var refCount int64
	db.DB.Model(&models.ImageReference{}).Count(&refCount)
	if refCount != 4 {
		t.Errorf("expected 4 reference rows (2 owners x 2 resolutions), got %d", refCount)
	}
}

func TestMultipleGroupsPerEntity(t *testing.T) {
	// 1. One owner carries two picture groups with distinct content
	ff := &binaryFeed{binaries: map[string][]byte{
		"http://img/cover.png":  pngBytes(t, 300, 150),
		"http://img/studio.png": pngBytes(t, 320, 160),
	}}
	s, db, _ := setupStore(t, ff, 1024)

	groups := []feed.ImageGroup{
		{Category: "cover", Versions: []feed.ImageVersion{{URL: "http://img/cover.png", Width: 300}}},
		{Category: "studio", Versions: []feed.ImageVersion{{URL: "http://img/studio.png", Width: 320}}},
	}
	if err := s.ProcessEntityImages(models.EntityBroadcast, 1, groups); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	// 2. Every picture keeps both resolution intents
	var refCount int64
	db.DB.Model(&models.ImageReference{}).Count(&refCount)
	if refCount != 4 {
		t.Fatalf("expected 4 reference rows (2 groups x 2 resolutions), got %d", refCount)
	}

	var imageCount int64
	db.DB.Model(&models.Image{}).Count(&imageCount)
	if imageCount != 2 {
		t.Errorf("expected 2 image rows, got %d", imageCount)
	}

	// 3. Cleanup keeps both while the owner still references them
	if _, err := s.CleanupOrphans(); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	db.DB.Model(&models.Image{}).Count(&imageCount)
	if imageCount != 2 {
		t.Errorf("referenced image of second group was collected, %d rows left", imageCount)
	}
}

func TestProcessIsIdempotentPerEntity(t *testing.T) {
	ff := &binaryFeed{binaries: map[string][]byte{
		"http://img/high.png": pngBytes(t, 400, 200),
		"http://img/low.png":  pngBytes(t, 100, 50),
	}}
	s, db, _ := setupStore(t, ff, 1024)

	groups := twoVariantGroup("http://img/high.png", "http://img/low.png")
	for i := 0; i < 3; i++ {
		if err := s.ProcessEntityImages(models.EntityBroadcast, 1, groups); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}

	var refCount int64
	db.DB.Model(&models.ImageReference{}).Count(&refCount)
	if refCount != 2 {
		t.Errorf("re-processing an owner must be a no-op, got %d references", refCount)
	}
	if ff.downloads != 2 {
		t.Errorf("expected 2 downloads total, got %d", ff.downloads)
	}
}

func TestSingleVariantServesBothResolutions(t *testing.T) {
	// One rendition upstream: high and low share the Image row, the
	// reference model still records both intents.
	ff := &binaryFeed{binaries: map[string][]byte{
		"http://img/only.png": pngBytes(t, 300, 150),
	}}
	s, db, _ := setupStore(t, ff, 1024)

	groups := []feed.ImageGroup{{
		Versions: []feed.ImageVersion{{URL: "http://img/only.png", Width: 300}},
	}}
	if err := s.ProcessEntityImages(models.EntityBroadcast, 1, groups); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	var imageCount int64
	db.DB.Model(&models.Image{}).Count(&imageCount)
	if imageCount != 1 {
		t.Fatalf("expected 1 image row, got %d", imageCount)
	}

	var refs []models.ImageReference
	db.DB.Order("resolution_type").Find(&refs)
	if len(refs) != 2 {
		t.Fatalf("expected high+low references, got %d", len(refs))
	}
	if refs[0].ImageID != refs[1].ImageID {
		t.Error("both references should point at the same image")
	}
	if refs[0].ResolutionType != models.ResolutionHigh || refs[1].ResolutionType != models.ResolutionLow {
		t.Errorf("unexpected resolutions: %s / %s", refs[0].ResolutionType, refs[1].ResolutionType)
	}
}

func TestHighResolutionIsCapped(t *testing.T) {
	ff := &binaryFeed{binaries: map[string][]byte{
		"http://img/wide.png": pngBytes(t, 800, 400),
	}}
	s, db, _ := setupStore(t, ff, 200)

	groups := []feed.ImageGroup{{
		Versions: []feed.ImageVersion{{URL: "http://img/wide.png", Width: 800}},
	}}
	if err := s.ProcessEntityImages(models.EntityBroadcast, 1, groups); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	var img models.Image
	if err := db.DB.Where("resolution_type = ?", models.ResolutionHigh).First(&img).Error; err != nil {
		t.Fatalf("high image missing: %v", err)
	}
	if img.Width != 200 {
		t.Errorf("width = %d, want capped 200", img.Width)
	}
	if img.Height != 100 {
		t.Errorf("height = %d, want aspect-preserved 100", img.Height)
	}
}

func TestCleanupOrphans(t *testing.T) {
	ff := &binaryFeed{binaries: map[string][]byte{
		"http://img/high.png": pngBytes(t, 400, 200),
		"http://img/low.png":  pngBytes(t, 100, 50),
	}}
	s, db, files := setupStore(t, ff, 1024)

	groups := twoVariantGroup("http://img/high.png", "http://img/low.png")
	if err := s.ProcessEntityImages(models.EntityBroadcast, 1, groups); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	// Still referenced: cleanup must not touch anything
	if _, err := s.CleanupOrphans(); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	var imageCount int64
	db.DB.Model(&models.Image{}).Count(&imageCount)
	if imageCount != 2 {
		t.Fatalf("referenced images were removed, %d left", imageCount)
	}

	// Drop the owner; everything becomes orphaned
	if err := s.DropEntityReferences(models.EntityBroadcast, 1); err != nil {
		t.Fatalf("drop references failed: %v", err)
	}
	removed, err := s.CleanupOrphans()
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 files removed, got %d", removed)
	}

	db.DB.Model(&models.Image{}).Count(&imageCount)
	if imageCount != 0 {
		t.Errorf("orphan rows survived cleanup: %d", imageCount)
	}
	keys, _ := files.ListImages()
	if len(keys) != 0 {
		t.Errorf("orphan files survived cleanup: %v", keys)
	}
}
