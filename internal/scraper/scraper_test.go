package scraper

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/config"
	database "github.com/CEOBancoBrasileiro/fm4-api-backend/internal/db"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/feed"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/images"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/models"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/scheduler"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/storage"
)

// SetupInMemoryDB creates a throwaway DB for testing
func SetupInMemoryDB(t *testing.T) *database.Client {
	d, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	d.AutoMigrate(
		&models.Broadcast{}, &models.BroadcastItem{},
		&models.Image{}, &models.ImageReference{},
		&models.ProgramKey{}, &models.Metadata{},
	)
	return &database.Client{DB: d}
}

type fakeFeed struct {
	live        []feed.LiveBroadcast
	days        []feed.BroadcastDayList
	details     map[string]*feed.BroadcastDetail
	binaries    map[string][]byte
	detailCalls []string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		details:  make(map[string]*feed.BroadcastDetail),
		binaries: make(map[string][]byte),
	}
}

func detailKey(programKey string, day int) string {
	return fmt.Sprintf("%s/%d", programKey, day)
}

func (f *fakeFeed) GetLive() ([]feed.LiveBroadcast, error)         { return f.live, nil }
func (f *fakeFeed) GetBroadcasts() ([]feed.BroadcastDayList, error) { return f.days, nil }

func (f *fakeFeed) GetBroadcastDetail(programKey string, day int) (*feed.BroadcastDetail, error) {
	key := detailKey(programKey, day)
	f.detailCalls = append(f.detailCalls, key)
	d, ok := f.details[key]
	if !ok {
		return nil, feed.ErrNotFound
	}
	return d, nil
}

func (f *fakeFeed) DownloadBinary(url string) ([]byte, error) {
	if b, ok := f.binaries[url]; ok {
		return b, nil
	}
	return nil, feed.ErrNotFound
}

func (f *fakeFeed) detailCallCount(programKey string, day int) int {
	n := 0
	for _, c := range f.detailCalls {
		if c == detailKey(programKey, day) {
			n++
		}
	}
	return n
}

func pngBytes(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x), A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.Images.MaxWidth = 512
	cfg.Images.Bucket = "images"
	cfg.Sync.ThrottleMillis = 0
	cfg.Sync.RetentionDays = 90
	cfg.Sync.CompletionGraceM = 5
	cfg.Feed.LoopstreamURL = "https://loopstream01.apa.at/?channel=fm4"
	return cfg
}

func setupScraper(t *testing.T, ff *fakeFeed, clock scheduler.Clock) (*Scraper, *database.Client) {
	cfg := testConfig(t)
	db := SetupInMemoryDB(t)
	files := storage.NewWithProvider(storage.NewLocalProvider(t.TempDir()), cfg.Images.Bucket)
	imgs := images.New(cfg, db, ff, files)
	return New(cfg, db, ff, imgs, clock), db
}

func sampleDetail(programKey string, day int, start, end time.Time) *feed.BroadcastDetail {
	return &feed.BroadcastDetail{
		ID:           "b-1",
		ProgramKey:   programKey,
		ProgramTitle: "Morning Show",
		BroadcastDay: day,
		Title:        "Morning Show",
		Station:      "fm4",
		State:        feed.StatePlaying,
		Start:        start.UnixMilli(),
		End:          end.UnixMilli(),
		Items: []feed.Item{
			{
				ID:          "item-1",
				Title:       "Song One",
				Interpreter: "Band A",
				Type:        "song",
				State:       feed.StateCompleted,
				Start:       start.Add(5 * time.Minute).UnixMilli(),
				End:         start.Add(9 * time.Minute).UnixMilli(),
			},
			{
				ID:          "item-2",
				Title:       "Song Two",
				Interpreter: "Band B",
				Type:        "song",
				State:       feed.StatePlaying,
				Start:       start.Add(9 * time.Minute).UnixMilli(),
				End:         start.Add(13 * time.Minute).UnixMilli(),
			},
		},
		Images: []feed.ImageGroup{{
			Category: "cover",
			Versions: []feed.ImageVersion{{URL: "http://img/show.png", Width: 300}},
		}},
		Streams: []feed.Stream{
			{LoopStreamID: "loop-1", Start: start.UnixMilli(), End: end.UnixMilli()},
		},
	}
}

func TestScrapeBroadcastPersistsDetail(t *testing.T) {
	// 1. Setup: a broadcast airing right now
	now := time.Date(2026, 8, 30, 8, 30, 0, 0, time.UTC)
	start := now.Add(-30 * time.Minute)
	end := now.Add(90 * time.Minute)

	ff := newFakeFeed()
	ff.details["4MS/20260830"] = sampleDetail("4MS", 20260830, start, end)
	ff.binaries["http://img/show.png"] = pngBytes(t, 300, 150)

	s, db := setupScraper(t, ff, scheduler.MockClock{MockTime: now})

	// 2. Scrape
	b, err := s.ScrapeBroadcast("4MS", 20260830, false)
	if err != nil {
		t.Fatalf("ScrapeBroadcast failed: %v", err)
	}
	if b == nil {
		t.Fatal("expected a stored broadcast")
	}

	// 3. Still airing, so not done
	if b.Done {
		t.Error("broadcast should not be done while airing")
	}
	if b.LoopStreamID != "loop-1" {
		t.Errorf("loopstream not persisted, got %q", b.LoopStreamID)
	}

	// 4. Items with derived offsets
	var items []models.BroadcastItem
	db.DB.Where("broadcast_id = ?", b.ID).Order("item_id").Find(&items)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	wantOffset := (5 * time.Minute).Milliseconds()
	if items[0].StartOffset != wantOffset {
		t.Errorf("startOffset = %d, want %d", items[0].StartOffset, wantOffset)
	}
	if items[0].Duration != (4 * time.Minute).Milliseconds() {
		t.Errorf("duration = %d, want %d", items[0].Duration, (4 * time.Minute).Milliseconds())
	}

	// 5. Program key registered opportunistically
	var pk models.ProgramKey
	if err := db.DB.Where("key = ?", "4MS").First(&pk).Error; err != nil {
		t.Errorf("program key not registered: %v", err)
	}

	// 6. Broadcast images ingested
	var refCount int64
	db.DB.Model(&models.ImageReference{}).
		Where("entity_type = ? AND entity_id = ?", models.EntityBroadcast, b.ID).
		Count(&refCount)
	if refCount != 2 {
		t.Errorf("expected high+low references for the broadcast, got %d", refCount)
	}
}

func TestScrapeBroadcastMarksDone(t *testing.T) {
	now := time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC)
	start := now.Add(-3 * time.Hour)
	end := now.Add(-1 * time.Hour) // already over

	ff := newFakeFeed()
	ff.details["4MS/20260830"] = sampleDetail("4MS", 20260830, start, end)

	s, _ := setupScraper(t, ff, scheduler.MockClock{MockTime: now})

	b, err := s.ScrapeBroadcast("4MS", 20260830, false)
	if err != nil {
		t.Fatalf("ScrapeBroadcast failed: %v", err)
	}
	if !b.Done {
		t.Fatal("broadcast with past end time should be marked done")
	}
}

func TestDoneIsMonotonic(t *testing.T) {
	now := time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC)
	start := now.Add(-3 * time.Hour)
	end := now.Add(-1 * time.Hour)

	ff := newFakeFeed()
	ff.details["4MS/20260830"] = sampleDetail("4MS", 20260830, start, end)

	s, db := setupScraper(t, ff, scheduler.MockClock{MockTime: now})

	if _, err := s.ScrapeBroadcast("4MS", 20260830, false); err != nil {
		t.Fatalf("first scrape failed: %v", err)
	}
	fetches := ff.detailCallCount("4MS", 20260830)

	// Even forced re-scrapes leave a finalized broadcast untouched.
	for i := 0; i < 3; i++ {
		b, err := s.ScrapeBroadcast("4MS", 20260830, true)
		if err != nil {
			t.Fatalf("re-scrape failed: %v", err)
		}
		if !b.Done {
			t.Fatal("done flag must never flip back to false")
		}
	}
	if got := ff.detailCallCount("4MS", 20260830); got != fetches {
		t.Errorf("finalized broadcast was re-fetched: %d fetches, want %d", got, fetches)
	}

	var stored models.Broadcast
	db.DB.Where("program_key = ?", "4MS").First(&stored)
	if !stored.Done {
		t.Error("stored done flag regressed")
	}
}

func TestRecencySkip(t *testing.T) {
	// Anchored to the real clock: the skip compares against UpdatedAt,
	// which gorm stamps with wall time.
	now := time.Now().UTC()
	start := now.Add(-30 * time.Minute)
	end := now.Add(90 * time.Minute)

	ff := newFakeFeed()
	ff.details["4MS/20260830"] = sampleDetail("4MS", 20260830, start, end)

	s, _ := setupScraper(t, ff, scheduler.MockClock{MockTime: now})

	if _, err := s.ScrapeBroadcast("4MS", 20260830, false); err != nil {
		t.Fatalf("first scrape failed: %v", err)
	}
	if _, err := s.ScrapeBroadcast("4MS", 20260830, false); err != nil {
		t.Fatalf("second scrape failed: %v", err)
	}

	if got := ff.detailCallCount("4MS", 20260830); got != 1 {
		t.Errorf("recently updated broadcast re-fetched: %d fetches, want 1", got)
	}

	// Force bypasses the skip
	if _, err := s.ScrapeBroadcast("4MS", 20260830, true); err != nil {
		t.Fatalf("forced scrape failed: %v", err)
	}
	if got := ff.detailCallCount("4MS", 20260830); got != 2 {
		t.Errorf("force should re-fetch: %d fetches, want 2", got)
	}
}

func TestNoDuplicateItems(t *testing.T) {
	now := time.Date(2026, 8, 30, 8, 30, 0, 0, time.UTC)
	start := now.Add(-30 * time.Minute)
	end := now.Add(90 * time.Minute)

	ff := newFakeFeed()
	ff.details["4MS/20260830"] = sampleDetail("4MS", 20260830, start, end)

	s, db := setupScraper(t, ff, scheduler.MockClock{MockTime: now})

	var b *models.Broadcast
	var err error
	for i := 0; i < 3; i++ {
		if b, err = s.ScrapeBroadcast("4MS", 20260830, true); err != nil {
			t.Fatalf("scrape %d failed: %v", i, err)
		}
	}

	var total, distinct int64
	db.DB.Model(&models.BroadcastItem{}).Where("broadcast_id = ?", b.ID).Count(&total)
	db.DB.Model(&models.BroadcastItem{}).Where("broadcast_id = ?", b.ID).Distinct("item_id").Count(&distinct)
	if total != 2 || distinct != total {
		t.Errorf("duplicate items after re-scrapes: total=%d distinct=%d", total, distinct)
	}
}

func TestScrapeBroadcastNotFound(t *testing.T) {
	ff := newFakeFeed()
	s, _ := setupScraper(t, ff, scheduler.MockClock{MockTime: time.Now()})

	b, err := s.ScrapeBroadcast("4XX", 20260101, false)
	if err != nil {
		t.Fatalf("not-found must not be an error, got: %v", err)
	}
	if b != nil {
		t.Error("expected nil broadcast for unknown (programKey, day)")
	}
}

func TestBackfillCompleteness(t *testing.T) {
	// The rolling list covers 6 days; asking for 10 must probe exactly
	// 4 more, walking backward from the day before the oldest covered.
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	ff := newFakeFeed()
	coveredDays := []int{20260830, 20260829, 20260828, 20260827, 20260826, 20260825}
	for _, day := range coveredDays {
		ff.days = append(ff.days, feed.BroadcastDayList{Day: day})
	}

	s, db := setupScraper(t, ff, scheduler.MockClock{MockTime: now})

	// Two known program keys
	db.DB.Create(&models.ProgramKey{Key: "4MS", Name: "Morning Show", LastSeenAt: now})
	db.DB.Create(&models.ProgramKey{Key: "4LB", Name: "La Boum", LastSeenAt: now})

	if err := s.ScrapeHistoricalBroadcasts(10); err != nil {
		t.Fatalf("historical scrape failed: %v", err)
	}

	wantDays := []int{20260824, 20260823, 20260822, 20260821}
	for _, day := range wantDays {
		for _, key := range []string{"4MS", "4LB"} {
			if ff.detailCallCount(key, day) != 1 {
				t.Errorf("expected exactly one probe for %s/%d, got %d", key, day, ff.detailCallCount(key, day))
			}
		}
	}
	if len(ff.detailCalls) != len(wantDays)*2 {
		t.Errorf("probed %d times, want %d", len(ff.detailCalls), len(wantDays)*2)
	}
}

func TestPrevDayCrossesMonthBoundary(t *testing.T) {
	if got := PrevDay(20260301); got != 20260228 {
		t.Errorf("PrevDay(20260301) = %d, want 20260228", got)
	}
	if got := PrevDay(20260101); got != 20251231 {
		t.Errorf("PrevDay(20260101) = %d, want 20251231", got)
	}
}
