package scraper

import (
	"fmt"
	"log"
	"time"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/models"
)

const (
	metaLastRecentScrape = "last_recent_scrape"
	metaLastFullScrape   = "last_full_scrape"
)

// ScrapeRecentBroadcasts walks the feed's rolling broadcast list and
// scrapes everything it names. The backup poll and the API trigger both
// land here.
func (s *Scraper) ScrapeRecentBroadcasts() error {
	days, err := s.feed.GetBroadcasts()
	if err != nil {
		return fmt.Errorf("fetch broadcast list: %w", err)
	}

	failures := 0
	for _, day := range days {
		for _, summary := range day.Broadcasts {
			if _, err := s.ScrapeBroadcast(summary.ProgramKey, summary.BroadcastDay, false); err != nil {
				log.Printf("⚠️ Scrape %s/%d failed: %v", summary.ProgramKey, summary.BroadcastDay, err)
				failures++
			}
			s.throttle()
		}
	}

	s.setMetadata(metaLastRecentScrape, s.clock.Now().Format(time.RFC3339))
	if failures > 0 {
		log.Printf("⚠️ Recent scrape finished with %d failures", failures)
	}
	return nil
}

// ScrapeHistoricalBroadcasts backfills history in two phases: first the
// live view and the rolling list (freshest data, covers recent days
// wholesale), then a day-by-day walk backward for whatever day count the
// list did not already cover, probing every known program key.
//
// Only one historical scrape runs per process; a concurrent invocation
// is a warned no-op.
func (s *Scraper) ScrapeHistoricalBroadcasts(daysBack int) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Println("⚠️ Historical scrape already running, skipping")
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Printf("🕰️ Historical scrape starting (%d days back)", daysBack)

	// Phase 1: whatever is live right now wins on freshness.
	live, err := s.feed.GetLive()
	if err != nil {
		log.Printf("⚠️ Live view unavailable during backfill: %v", err)
	}
	for _, lb := range live {
		if _, err := s.ScrapeBroadcast(lb.ProgramKey, lb.BroadcastDay, true); err != nil {
			log.Printf("⚠️ Live scrape %s/%d failed: %v", lb.ProgramKey, lb.BroadcastDay, err)
		}
		s.throttle()
	}

	// Phase 2: the rolling list enumerates recent days directly, no
	// per-program probing needed for those.
	covered := make(map[int]bool)
	days, err := s.feed.GetBroadcasts()
	if err != nil {
		return fmt.Errorf("fetch broadcast list: %w", err)
	}
	failures := 0
	for _, day := range days {
		covered[day.Day] = true
		for _, summary := range day.Broadcasts {
			if _, err := s.ScrapeBroadcast(summary.ProgramKey, summary.BroadcastDay, false); err != nil {
				log.Printf("⚠️ Scrape %s/%d failed: %v", summary.ProgramKey, summary.BroadcastDay, err)
				failures++
			}
			s.throttle()
		}
	}

	// Phase 3: probe the remainder, oldest covered day backward. The
	// remainder count deliberately ignores range overlaps; duplicate
	// probes are absorbed by the done/recency skips.
	missing := daysBack - len(covered)
	if missing > 0 {
		oldest := 0
		for day := range covered {
			if oldest == 0 || day < oldest {
				oldest = day
			}
		}
		if oldest == 0 {
			oldest = DayFromTime(s.clock.Now())
		}

		var keys []models.ProgramKey
		if err := s.db.Find(&keys).Error; err != nil {
			return err
		}
		log.Printf("🕰️ Probing %d additional days across %d program keys", missing, len(keys))

		day := PrevDay(oldest)
		for i := 0; i < missing; i++ {
			for _, pk := range keys {
				if _, err := s.ScrapeBroadcast(pk.Key, day, false); err != nil {
					log.Printf("⚠️ Backfill %s/%d failed: %v", pk.Key, day, err)
					failures++
				}
				s.throttle()
			}
			day = PrevDay(day)
		}
	}

	s.setMetadata(metaLastFullScrape, s.clock.Now().Format(time.RFC3339))
	log.Printf("✅ Historical scrape complete (%d failures)", failures)
	return nil
}

// DiscoverProgramKeys registers every program key visible in the live
// view and the rolling list, refreshing last-seen stamps.
func (s *Scraper) DiscoverProgramKeys() (int, error) {
	seen := make(map[string]string)

	live, err := s.feed.GetLive()
	if err != nil {
		return 0, err
	}
	for _, lb := range live {
		seen[lb.ProgramKey] = lb.ProgramTitle
	}

	days, err := s.feed.GetBroadcasts()
	if err != nil {
		return 0, err
	}
	for _, day := range days {
		for _, summary := range day.Broadcasts {
			seen[summary.ProgramKey] = summary.ProgramTitle
		}
	}

	for key, name := range seen {
		s.registerProgramKey(key, name)
	}
	return len(seen), nil
}

// CleanupOldBroadcasts hard-deletes broadcasts beyond the retention
// window, then sweeps orphaned images. Items ride along on the cascade.
func (s *Scraper) CleanupOldBroadcasts() error {
	cutoff := DayFromTime(s.clock.Now().AddDate(0, 0, -s.cfg.Sync.RetentionDays))

	var stale []models.Broadcast
	if err := s.db.Where("broadcast_day < ?", cutoff).Find(&stale).Error; err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	for _, b := range stale {
		var itemIDs []uint
		if err := s.db.Model(&models.BroadcastItem{}).Where("broadcast_id = ?", b.ID).Pluck("id", &itemIDs).Error; err != nil {
			return err
		}
		for _, id := range itemIDs {
			if err := s.images.DropEntityReferences(models.EntityBroadcastItem, id); err != nil {
				return err
			}
		}
		if err := s.images.DropEntityReferences(models.EntityBroadcast, b.ID); err != nil {
			return err
		}
		if err := s.db.Unscoped().Where("broadcast_id = ?", b.ID).Delete(&models.BroadcastItem{}).Error; err != nil {
			return err
		}
		if err := s.db.Unscoped().Delete(&models.Broadcast{}, b.ID).Error; err != nil {
			return err
		}
	}
	log.Printf("🧹 Removed %d broadcasts older than %d", len(stale), cutoff)

	_, err := s.images.CleanupOrphans()
	return err
}

// throttle spaces outbound requests during bulk scrapes.
func (s *Scraper) throttle() {
	if s.cfg.Sync.ThrottleMillis > 0 {
		time.Sleep(time.Duration(s.cfg.Sync.ThrottleMillis) * time.Millisecond)
	}
}
