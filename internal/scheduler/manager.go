package scheduler

import (
	"log"
	"time"
)

type job struct {
	name       string
	interval   time.Duration
	runAtStart bool
	fn         func() error
}

// Manager fires registered jobs on fixed cadences. One goroutine per
// cadence; a failing or panicking job is logged and retried at its next
// tick, never crashing the process.
type Manager struct {
	jobs []job
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) Add(name string, interval time.Duration, runAtStart bool, fn func() error) {
	m.jobs = append(m.jobs, job{name: name, interval: interval, runAtStart: runAtStart, fn: fn})
}

// Run blocks until stop is closed.
func (m *Manager) Run(stop <-chan struct{}) {
	for _, j := range m.jobs {
		go m.loop(j, stop)
	}
	log.Printf("⏰ Scheduler running %d jobs", len(m.jobs))
	<-stop
}

func (m *Manager) loop(j job, stop <-chan struct{}) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	if j.runAtStart {
		m.invoke(j)
	}
	for {
		select {
		case <-ticker.C:
			m.invoke(j)
		case <-stop:
			return
		}
	}
}

func (m *Manager) invoke(j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Job %s panicked: %v", j.name, r)
		}
	}()
	if err := j.fn(); err != nil {
		log.Printf("⚠️ Job %s failed: %v", j.name, err)
	}
}
