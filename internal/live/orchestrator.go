package live

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
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/scraper"
)

var (
	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fm4_live_ticks_total",
			Help: "Live poll ticks by outcome",
		},
		[]string{"outcome"},
	)
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fm4_live_tick_duration_seconds",
			Help:    "Live poll tick time",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(ticks, tickDuration)
}

type monitoredBroadcast struct {
	ProgramKey string
	Day        int
	State      string
	LastSeen   time.Time
}

type monitoredItem struct {
	ProgramKey string
	Day        int
	Broadcast  string // live entry id of the parent
	End        time.Time
	State      string
}

// Orchestrator polls the live view and triggers the minimum necessary
// re-fetch when a broadcast or item starts, keeps airing, or completes.
//
// Its tracking maps are process-local and rebuildable: after a restart
// they start empty and self-populate on the next tick. The store, not
// this cache, is authoritative.
type Orchestrator struct {
	cfg     *config.Config
	db      *gorm.DB
	feed    feed.API
	scraper *scraper.Scraper
	images  *images.Store
	clock   scheduler.Clock

	mu         sync.Mutex
	broadcasts map[string]*monitoredBroadcast // by live entry id
	items      map[string]*monitoredItem      // by item id
	processed  map[string]map[string]bool     // entry id -> item ids already existence-checked
}

func New(cfg *config.Config, db *database.Client, feedClient feed.API, scr *scraper.Scraper, imgs *images.Store, clock scheduler.Clock) *Orchestrator {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	return &Orchestrator{
		cfg:        cfg,
		db:         db.DB,
		feed:       feedClient,
		scraper:    scr,
		images:     imgs,
		clock:      clock,
		broadcasts: make(map[string]*monitoredBroadcast),
		items:      make(map[string]*monitoredItem),
		processed:  make(map[string]map[string]bool),
	}
}

// Tick runs one poll cycle. A feed error abandons the whole tick with no
// partial tracking-state commits; the next tick retries naturally.
func (o *Orchestrator) Tick() {
	timer := prometheus.NewTimer(tickDuration)
	defer timer.ObserveDuration()

	view, err := o.feed.GetLive()
	if err != nil {
		log.Printf("⚠️ Live view fetch failed: %v", err)
		ticks.WithLabelValues("failure").Inc()
		return
	}
	if len(view) == 0 {
		ticks.WithLabelValues("empty").Inc()
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	inView := make(map[string]bool, len(view))

	for i := range view {
		entry := &view[i]
		inView[entry.ID] = true

		prev := o.broadcasts[entry.ID]

		if entry.State != feed.StateCompleted {
			// Airing or about to: freshness matters most, bypass the
			// recency skip.
			stored, err := o.scraper.ScrapeBroadcast(entry.ProgramKey, entry.BroadcastDay, true)
			if err != nil {
				log.Printf("⚠️ Live scrape %s/%d failed: %v", entry.ProgramKey, entry.BroadcastDay, err)
			} else if stored != nil {
				o.reconcileItems(entry, stored)
			}
			o.broadcasts[entry.ID] = &monitoredBroadcast{
				ProgramKey: entry.ProgramKey,
				Day:        entry.BroadcastDay,
				State:      entry.State,
				LastSeen:   now,
			}
		} else if prev != nil {
			o.completeBroadcast(entry.ID, prev)
		}

		o.trackItems(entry)
	}

	// A monitored broadcast absent from the view has ended, even when no
	// tick ever saw it in state completed. Run the same completion path
	// so the final fetch is not lost to a missed transition.
	for id, prev := range o.broadcasts {
		if !inView[id] {
			o.completeBroadcast(id, prev)
		}
	}

	// Self-healing: monitored items whose expected end has passed without
	// a completion signal force a re-fetch of their parent.
	for id, item := range o.items {
		if item.State == feed.StateCompleted || now.After(item.End) {
			if _, err := o.scraper.ScrapeBroadcast(item.ProgramKey, item.Day, true); err != nil {
				log.Printf("⚠️ Item completion re-fetch %s/%d failed: %v", item.ProgramKey, item.Day, err)
			}
			delete(o.items, id)
		}
	}

	ticks.WithLabelValues("success").Inc()
}

// completeBroadcast handles the monitored→completed transition: one last
// force-fetch captures the final item list and flips the loopstream URLs
// to offset mode, then the entry leaves the tracking sets.
func (o *Orchestrator) completeBroadcast(entryID string, prev *monitoredBroadcast) {
	cooldown := time.Duration(o.cfg.Sync.CompletionGraceM) * time.Minute

	var stored models.Broadcast
	err := o.db.Where("program_key = ? AND broadcast_day = ?", prev.ProgramKey, prev.Day).First(&stored).Error
	fresh := err == nil && o.clock.Now().Sub(stored.UpdatedAt) < cooldown

	if !fresh {
		if _, err := o.scraper.ScrapeBroadcast(prev.ProgramKey, prev.Day, true); err != nil {
			log.Printf("⚠️ Completion scrape %s/%d failed: %v", prev.ProgramKey, prev.Day, err)
		}
	}

	delete(o.broadcasts, entryID)
	delete(o.processed, entryID)
}

// trackItems moves live items in and out of the monitored set.
func (o *Orchestrator) trackItems(entry *feed.LiveBroadcast) {
	for _, it := range entry.Items {
		switch it.State {
		case feed.StatePlaying:
			if _, ok := o.items[it.ID]; !ok {
				o.items[it.ID] = &monitoredItem{
					ProgramKey: entry.ProgramKey,
					Day:        entry.BroadcastDay,
					Broadcast:  entry.ID,
					End:        feed.MillisToTime(it.End),
					State:      it.State,
				}
			}
		case feed.StateCompleted:
			if tracked, ok := o.items[it.ID]; ok {
				tracked.State = feed.StateCompleted // picked up by the sweep
			}
		}
	}
}

// reconcileItems inserts items the live view reports but the store does
// not yet hold. Moderation-fast items can complete before they ever show
// up in the detail endpoint; this is the only path that catches them.
func (o *Orchestrator) reconcileItems(entry *feed.LiveBroadcast, stored *models.Broadcast) {
	cache := o.processed[entry.ID]
	if cache == nil {
		cache = make(map[string]bool)
		o.processed[entry.ID] = cache
	}

	for _, it := range entry.Items {
		if cache[it.ID] {
			continue
		}

		var existing models.BroadcastItem
		err := o.db.Where("broadcast_id = ? AND item_id = ?", stored.ID, it.ID).First(&existing).Error
		if err == nil {
			cache[it.ID] = true
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("⚠️ Item lookup %s failed: %v", it.ID, err)
			continue
		}

		row := models.BroadcastItem{
			BroadcastID: stored.ID,
			ItemID:      it.ID,
			Title:       it.Title,
			Interpreter: it.Interpreter,
			Type:        it.Type,
			State:       it.State,
			Start:       feed.MillisToTime(it.Start),
			End:         feed.MillisToTime(it.End),
		}
		if !stored.Start.IsZero() && it.Start > 0 {
			row.StartOffset, row.EndOffset = stored.Offsets(&row)
			row.Duration = row.EndOffset - row.StartOffset
		}
		if err := o.db.Create(&row).Error; err != nil {
			log.Printf("⚠️ Live item insert %s failed: %v", it.ID, err)
			continue
		}
		cache[it.ID] = true

		if err := o.images.ProcessEntityImages(models.EntityBroadcastItem, row.ID, it.Images); err != nil {
			log.Printf("⚠️ Live item image ingest %s failed: %v", it.ID, err)
		}
		log.Printf("🎵 Live item stored: %s (%s – %s)", it.ID, it.Interpreter, it.Title)
	}
}
