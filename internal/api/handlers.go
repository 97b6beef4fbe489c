package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/models"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/scraper"
)

// GetBroadcasts returns a paginated list of broadcasts.
// Query Params: page (default 1), limit (default 50), search, program, day
func (s *Server) GetBroadcasts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	search := c.Query("search")
	program := c.Query("program")
	day := c.Query("day")

	offset := (page - 1) * limit

	var broadcasts []models.Broadcast
	var total int64

	query := s.db.DB.Model(&models.Broadcast{})

	if search != "" {
		searchTerm := "%" + search + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", searchTerm, searchTerm)
	}
	if program != "" {
		query = query.Where("program_key = ?", program)
	}
	if day != "" {
		d, err := strconv.Atoi(day)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYYMMDD"})
			return
		}
		query = query.Where("broadcast_day = ?", d)
	}

	// Count total for pagination metadata
	query.Count(&total)

	result := query.Order("broadcast_day desc, start desc").Limit(limit).Offset(offset).Find(&broadcasts)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": broadcasts,
		"meta": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetBroadcastDetail returns one broadcast with its items, playback URLs
// and image paths. The loopstream URL shape follows the done flag.
func (s *Server) GetBroadcastDetail(c *gin.Context) {
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYYMMDD"})
		return
	}
	programKey := c.Param("programKey")

	var broadcast models.Broadcast
	err = s.db.DB.Preload("Items").
		Where("program_key = ? AND broadcast_day = ?", programKey, day).
		First(&broadcast).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "broadcast not found"})
		return
	}

	items := make([]gin.H, 0, len(broadcast.Items))
	for i := range broadcast.Items {
		item := &broadcast.Items[i]
		items = append(items, gin.H{
			"item":           item,
			"loopstream_url": scraper.LoopstreamURL(s.cfg.Feed.LoopstreamURL, &broadcast, item),
			"images":         s.imagePaths(models.EntityBroadcastItem, item.ID),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"broadcast": broadcast,
		"items":     items,
		"images":    s.imagePaths(models.EntityBroadcast, broadcast.ID),
	})
}

// SearchItems searches stored items by title or interpreter.
func (s *Server) SearchItems(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter 'q'"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var items []models.BroadcastItem
	searchTerm := "%" + q + "%"
	err := s.db.DB.
		Where("title ILIKE ? OR interpreter ILIKE ?", searchTerm, searchTerm).
		Order("start desc").Limit(limit).
		Find(&items).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// GetProgramKeys lists the discovered program registry.
func (s *Server) GetProgramKeys(c *gin.Context) {
	var keys []models.ProgramKey
	if err := s.db.DB.Order("key").Find(&keys).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": keys})
}

// GetStats returns basic database statistics
func (s *Server) GetStats(c *gin.Context) {
	var broadcasts, items, imgs, done int64

	s.db.DB.Model(&models.Broadcast{}).Count(&broadcasts)
	s.db.DB.Model(&models.Broadcast{}).Where("done = ?", true).Count(&done)
	s.db.DB.Model(&models.BroadcastItem{}).Count(&items)
	s.db.DB.Model(&models.Image{}).Count(&imgs)

	c.JSON(http.StatusOK, gin.H{
		"total_broadcasts": broadcasts,
		"done_broadcasts":  done,
		"total_items":      items,
		"total_images":     imgs,
	})
}

// GetSyncStatus exposes the orchestrator's tracking sets.
func (s *Server) GetSyncStatus(c *gin.Context) {
	if s.orch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no orchestrator in this process"})
		return
	}
	c.JSON(http.StatusOK, s.orch.Status())
}

// GetImage streams one stored image file by its content-derived key.
func (s *Server) GetImage(c *gin.Context) {
	key := c.Param("key")

	body, length, err := s.storage.GetImage(key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, length, "image/jpeg", body, map[string]string{
		"Cache-Control": "public, max-age=31536000",
	})
}

// TriggerScrape scrapes a single (programKey, day). ?force=true bypasses
// the recency skip.
func (s *Server) TriggerScrape(c *gin.Context) {
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYYMMDD"})
		return
	}
	force := c.Query("force") == "true"

	broadcast, err := s.scraper.ScrapeBroadcast(c.Param("programKey"), day, force)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if broadcast == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown upstream broadcast"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"broadcast": broadcast})
}

func (s *Server) TriggerRecentScrape(c *gin.Context) {
	if err := s.scraper.ScrapeRecentBroadcasts(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "done"})
}

func (s *Server) TriggerHistoricalScrape(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(s.cfg.Sync.HistoricalDays)))

	// Long-running; detach. Overlap protection lives in the scraper.
	go func() {
		if err := s.scraper.ScrapeHistoricalBroadcasts(days); err != nil {
			log.Printf("⚠️ Historical scrape failed: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "days": days})
}

func (s *Server) TriggerDiscovery(c *gin.Context) {
	count, err := s.scraper.DiscoverProgramKeys()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"program_keys": count})
}

func (s *Server) TriggerCleanup(c *gin.Context) {
	if err := s.scraper.CleanupOldBroadcasts(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "done"})
}

// imagePaths resolves the stored image keys for one owning entity.
func (s *Server) imagePaths(entityType string, entityID uint) gin.H {
	paths := gin.H{}
	var refs []models.ImageReference
	err := s.db.DB.Where("entity_type = ? AND entity_id = ?", entityType, entityID).Find(&refs).Error
	if err != nil {
		return paths
	}
	for _, ref := range refs {
		var img models.Image
		if err := s.db.DB.First(&img, ref.ImageID).Error; err == nil {
			paths[ref.ResolutionType] = "/api/v1/images/" + img.Path
		}
	}
	return paths
}
