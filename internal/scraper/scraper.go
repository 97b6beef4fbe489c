package scraper

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/config"
	database "github.com/CEOBancoBrasileiro/fm4-api-backend/internal/db"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/feed"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/images"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/models"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/scheduler"
)

var (
	scrapes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fm4_scrape_total",
			Help: "Broadcast scrapes by outcome",
		},
		[]string{"outcome"},
	)
	scrapeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fm4_scrape_duration_seconds",
			Help:    "Broadcast scrape time",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(scrapes, scrapeDuration)
}

// RecencyWindow bounds fetch volume during steady-state polling: a not-yet-done
// broadcast updated this recently is not re-fetched unless forced.
const RecencyWindow = time.Hour

type Scraper struct {
	cfg    *config.Config
	db     *gorm.DB
	feed   feed.API
	images *images.Store
	clock  scheduler.Clock

	mu      sync.Mutex
	running bool // guards full/historical scrapes, not single broadcasts
}

func New(cfg *config.Config, db *database.Client, feedClient feed.API, imgs *images.Store, clock scheduler.Clock) *Scraper {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	return &Scraper{
		cfg:    cfg,
		db:     db.DB,
		feed:   feedClient,
		images: imgs,
		clock:  clock,
	}
}

// ScrapeBroadcast fetches and persists one (programKey, day) broadcast.
// Returns the stored record, or nil when upstream knows nothing about it.
//
// Decision order: finalized broadcasts are immutable; recently updated
// ones are skipped unless forced; everything else is fetched anew.
func (s *Scraper) ScrapeBroadcast(programKey string, day int, force bool) (*models.Broadcast, error) {
	var existing models.Broadcast
	err := s.db.Where("program_key = ? AND broadcast_day = ?", programKey, day).First(&existing).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if found && existing.Done {
		scrapes.WithLabelValues("skipped_done").Inc()
		return &existing, nil
	}
	if found && !force && s.clock.Now().Sub(existing.UpdatedAt) < RecencyWindow {
		scrapes.WithLabelValues("skipped_recent").Inc()
		return &existing, nil
	}

	timer := prometheus.NewTimer(scrapeDuration)
	defer timer.ObserveDuration()

	detail, err := s.feed.GetBroadcastDetail(programKey, day)
	if errors.Is(err, feed.ErrNotFound) {
		scrapes.WithLabelValues("not_found").Inc()
		return nil, nil
	}
	if err != nil {
		scrapes.WithLabelValues("failure").Inc()
		return nil, err
	}

	broadcast, newItems, err := s.persistDetail(detail)
	if err != nil {
		scrapes.WithLabelValues("failure").Inc()
		return nil, err
	}

	s.registerProgramKey(detail.ProgramKey, detail.ProgramTitle)

	// Images: the broadcast itself, then every item stored for the
	// first time. Row ids are assigned by now; the reference guard in
	// the image store makes re-scrapes a no-op.
	if err := s.images.ProcessEntityImages(models.EntityBroadcast, broadcast.ID, detail.Images); err != nil {
		log.Printf("⚠️ Broadcast image ingest failed for %s/%d: %v", programKey, day, err)
	}
	for _, item := range newItems {
		if err := s.images.ProcessEntityImages(models.EntityBroadcastItem, item.rowID, item.groups); err != nil {
			log.Printf("⚠️ Item image ingest failed for %s: %v", item.itemID, err)
		}
	}

	// The one place a broadcast transitions to done from the detail path.
	if detail.End > 0 && feed.MillisToTime(detail.End).Before(s.clock.Now()) && !broadcast.Done {
		if err := s.db.Model(broadcast).Update("done", true).Error; err != nil {
			return nil, err
		}
		broadcast.Done = true
	}

	scrapes.WithLabelValues("success").Inc()
	return broadcast, nil
}

type ingestedItem struct {
	rowID  uint
	itemID string
	groups []feed.ImageGroup
}

// persistDetail upserts the broadcast and its items in one transaction.
// Item inserts need the broadcast's assigned row id, hence the ordering.
func (s *Scraper) persistDetail(detail *feed.BroadcastDetail) (*models.Broadcast, []ingestedItem, error) {
	var broadcast models.Broadcast
	var newItems []ingestedItem

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Which items do we already hold? New ones get image ingestion.
		var knownIDs []string
		err := tx.Model(&models.BroadcastItem{}).
			Joins("JOIN broadcasts ON broadcasts.id = broadcast_items.broadcast_id").
			Where("broadcasts.program_key = ? AND broadcasts.broadcast_day = ?", detail.ProgramKey, detail.BroadcastDay).
			Pluck("broadcast_items.item_id", &knownIDs).Error
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(knownIDs))
		for _, id := range knownIDs {
			known[id] = true
		}

		fields := models.Broadcast{
			BroadcastID: detail.ID,
			ProgramKey:  detail.ProgramKey,
			Title:       detail.Title,
			Subtitle:    detail.Subtitle,
			Description: detail.Description,
			Station:     detail.Station,
			Start:       feed.MillisToTime(detail.Start),
			End:         feed.MillisToTime(detail.End),
		}
		for _, stream := range detail.Streams {
			fields.LoopStreamID = stream.LoopStreamID
			fields.LoopStart = feed.MillisToTime(stream.Start)
			fields.LoopEnd = feed.MillisToTime(stream.End)
			break
		}

		err = tx.Where(models.Broadcast{ProgramKey: detail.ProgramKey, BroadcastDay: detail.BroadcastDay}).
			Assign(fields).
			FirstOrCreate(&broadcast).Error
		if err != nil {
			return err
		}

		for _, it := range detail.Items {
			row := models.BroadcastItem{
				BroadcastID: broadcast.ID,
				ItemID:      it.ID,
			}
			values := models.BroadcastItem{
				Title:       it.Title,
				Interpreter: it.Interpreter,
				Type:        it.Type,
				State:       it.State,
				Start:       feed.MillisToTime(it.Start),
				End:         feed.MillisToTime(it.End),
			}
			if !broadcast.Start.IsZero() && it.Start > 0 {
				values.StartOffset, values.EndOffset = broadcast.Offsets(&models.BroadcastItem{
					Start: values.Start, End: values.End,
				})
				values.Duration = values.EndOffset - values.StartOffset
			}

			err := tx.Where(models.BroadcastItem{BroadcastID: broadcast.ID, ItemID: it.ID}).
				Assign(values).
				FirstOrCreate(&row).Error
			if err != nil {
				return err
			}
			if !known[it.ID] {
				newItems = append(newItems, ingestedItem{rowID: row.ID, itemID: it.ID, groups: it.Images})
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &broadcast, newItems, nil
}

// registerProgramKey keeps the opportunistic registry fresh. Failures are
// logged only; discovery is best-effort bookkeeping.
func (s *Scraper) registerProgramKey(key, name string) {
	if key == "" {
		return
	}
	var pk models.ProgramKey
	err := s.db.Where(models.ProgramKey{Key: key}).
		Assign(models.ProgramKey{Name: name, LastSeenAt: s.clock.Now()}).
		FirstOrCreate(&pk).Error
	if err != nil {
		log.Printf("⚠️ Could not register program key %s: %v", key, err)
	}
}

func (s *Scraper) setMetadata(key, value string) {
	var row models.Metadata
	err := s.db.Where(models.Metadata{Key: key}).
		Assign(models.Metadata{Value: value}).
		FirstOrCreate(&row).Error
	if err != nil {
		log.Printf("⚠️ Could not store metadata %s: %v", key, err)
	}
}
