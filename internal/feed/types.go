package feed

import "time"

// State codes, normalized at the client boundary so callers never see raw
// upstream codes.
const (
	StateScheduled = "scheduled"
	StatePlaying   = "playing"
	StateCompleted = "completed"
)

// ImageVersion is one rendition of a logical picture, as reported upstream.
type ImageVersion struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ImageGroup is one logical picture with its available renditions.
type ImageGroup struct {
	Category string         `json:"category"`
	Versions []ImageVersion `json:"versions"`
}

// Item is a song/jingle/ad/news segment, shared between the live view and
// the broadcast detail.
type Item struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Interpreter string       `json:"interpreter"`
	Type        string       `json:"type"`
	State       string       `json:"state"`
	Start       int64        `json:"start"` // epoch millis
	End         int64        `json:"end"`
	Images      []ImageGroup `json:"images"`
}

// LiveBroadcast is one entry of the station's live view.
type LiveBroadcast struct {
	ID           string `json:"id"`
	ProgramKey   string `json:"programKey"`
	ProgramTitle string `json:"programTitle"`
	BroadcastDay int    `json:"broadcastDay"` // YYYYMMDD
	State        string `json:"state"`
	Start        int64  `json:"start"`
	End          int64  `json:"end"`
	Items        []Item `json:"items"`
}

// BroadcastSummary is one entry of the rolling broadcast list.
type BroadcastSummary struct {
	ID           string `json:"id"`
	ProgramKey   string `json:"programKey"`
	ProgramTitle string `json:"programTitle"`
	BroadcastDay int    `json:"broadcastDay"`
	Title        string `json:"title"`
	Start        int64  `json:"start"`
	End          int64  `json:"end"`
}

// BroadcastDayList groups the rolling list per calendar day.
type BroadcastDayList struct {
	Day        int                `json:"day"` // YYYYMMDD
	Broadcasts []BroadcastSummary `json:"broadcasts"`
}

// Stream carries the loopstream recording window for on-demand playback.
type Stream struct {
	LoopStreamID string `json:"loopStreamId"`
	Start        int64  `json:"start"`
	End          int64  `json:"end"`
}

// BroadcastDetail is the full detail of one (programKey, day) broadcast.
type BroadcastDetail struct {
	ID           string       `json:"id"`
	ProgramKey   string       `json:"programKey"`
	ProgramTitle string       `json:"programTitle"`
	BroadcastDay int          `json:"broadcastDay"`
	Title        string       `json:"title"`
	Subtitle     string       `json:"subtitle"`
	Description  string       `json:"description"`
	Station      string       `json:"station"`
	State        string       `json:"state"`
	Start        int64        `json:"start"`
	End          int64        `json:"end"`
	Items        []Item       `json:"items"`
	Images       []ImageGroup `json:"images"`
	Streams      []Stream     `json:"streams"`
}

// MillisToTime converts an upstream epoch-millis timestamp to UTC time.
// Zero stays the zero time so unset fields survive round trips.
func MillisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// NormalizeState folds the upstream state vocabulary onto the
// scheduled/playing/completed triple.
func NormalizeState(raw string) string {
	switch raw {
	case "S", "SM", "sendung", StateScheduled:
		return StateScheduled
	case "P", "B", "onair", StatePlaying:
		return StatePlaying
	case "C", "E", "done", StateCompleted:
		return StateCompleted
	}
	return raw
}
