package live

import "time"

// Status is an operational snapshot of the tracking sets, served by the
// status endpoint. Read-only: callers never touch the live maps.
type Status struct {
	MonitoredBroadcasts int               `json:"monitored_broadcasts"`
	MonitoredItems      int               `json:"monitored_items"`
	Broadcasts          []BroadcastStatus `json:"broadcasts"`
	Items               []ItemStatus      `json:"items"`
}

type BroadcastStatus struct {
	ID         string    `json:"id"`
	ProgramKey string    `json:"program_key"`
	Day        int       `json:"day"`
	State      string    `json:"state"`
	LastSeen   time.Time `json:"last_seen"`
}

type ItemStatus struct {
	ID        string    `json:"id"`
	Broadcast string    `json:"broadcast"`
	State     string    `json:"state"`
	End       time.Time `json:"end"`
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Status{
		MonitoredBroadcasts: len(o.broadcasts),
		MonitoredItems:      len(o.items),
	}
	for id, b := range o.broadcasts {
		s.Broadcasts = append(s.Broadcasts, BroadcastStatus{
			ID:         id,
			ProgramKey: b.ProgramKey,
			Day:        b.Day,
			State:      b.State,
			LastSeen:   b.LastSeen,
		})
	}
	for id, it := range o.items {
		s.Items = append(s.Items, ItemStatus{
			ID:        id,
			Broadcast: it.Broadcast,
			State:     it.State,
			End:       it.End,
		})
	}
	return s
}
