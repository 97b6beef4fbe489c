package images

import (
	"log"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/models"
)

// DropEntityReferences removes all reference rows owned by one entity.
// Called by retention cleanup before the owner itself is deleted; the
// images become orphans and fall to CleanupOrphans.
func (s *Store) DropEntityReferences(entityType string, entityID uint) error {
	return s.db.Unscoped().
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Delete(&models.ImageReference{}).Error
}

// CleanupOrphans deletes Image rows with zero references, then removes
// stored files no surviving row points at. DB first, filesystem second:
// a crash mid-cleanup leaves unreferenced files, never dangling rows.
func (s *Store) CleanupOrphans() (int, error) {
	var orphans []models.Image
	err := s.db.
		Where("NOT EXISTS (SELECT 1 FROM image_references r WHERE r.image_id = images.id AND r.deleted_at IS NULL)").
		Find(&orphans).Error
	if err != nil {
		return 0, err
	}

	for _, img := range orphans {
		if err := s.db.Unscoped().Delete(&models.Image{}, img.ID).Error; err != nil {
			return 0, err
		}
	}

	// Phase two: sweep files whose key no longer appears in any row.
	var keep []string
	if err := s.db.Model(&models.Image{}).Pluck("path", &keep).Error; err != nil {
		return 0, err
	}
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}

	files, err := s.files.ListImages()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range files {
		if keepSet[key] {
			continue
		}
		if err := s.files.DeleteImage(key); err != nil {
			log.Printf("⚠️ Could not remove orphaned file %s: %v", key, err)
			continue
		}
		removed++
	}

	if len(orphans) > 0 || removed > 0 {
		log.Printf("🧹 Image cleanup: %d rows, %d files removed", len(orphans), removed)
	}
	return removed, nil
}
