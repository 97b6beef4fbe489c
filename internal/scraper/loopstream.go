package scraper

import (
	"fmt"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/models"
)

// LoopstreamURL builds the on-demand playback URL for one item. The URL
// shape is keyed purely off the parent's done flag:
//
//   - while the broadcast is still airing, a date-range URL lets the
//     listener seek within the growing recording;
//   - once done, the recording boundaries are fixed and the URL switches
//     to millisecond offsets into the loopstream.
//
// No migration step runs on the transition; readers always derive the
// shape from current state.
func LoopstreamURL(base string, b *models.Broadcast, item *models.BroadcastItem) string {
	if b.LoopStreamID == "" {
		return ""
	}
	if b.Done {
		return fmt.Sprintf("%s&id=%s&offset=%d", base, b.LoopStreamID, item.StartOffset)
	}
	dayEnd := TimeFromDay(b.BroadcastDay).AddDate(0, 0, 1)
	return fmt.Sprintf("%s&id=%s&start=%d&end=%d", base, b.LoopStreamID, item.Start.UnixMilli(), dayEnd.UnixMilli())
}
