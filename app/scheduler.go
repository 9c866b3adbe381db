package app

import (
	"context"
	"log"
	"time"
)

// NightlyScheduler fires the nightly recompute once per day at the
// configured local hour. It checks hourly rather than sleeping until the
// target time, so a restarted process still runs the job on the next check
// if today's run has not happened yet.
type NightlyScheduler struct {
	job         *NightlyJob
	nightlyHour int
	lastRunDate string
	done        chan bool
}

// NewNightlyScheduler creates the scheduler
func NewNightlyScheduler(job *NightlyJob, nightlyHour int) *NightlyScheduler {
	return &NightlyScheduler{
		job:         job,
		nightlyHour: nightlyHour,
		done:        make(chan bool),
	}
}

// Start begins the scheduling loop
func (s *NightlyScheduler) Start() {
	log.Printf("🌙 Nightly scheduler started (fires at %02d:00)", s.nightlyHour)

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	s.maybeRun(time.Now())

	for {
		select {
		case <-ticker.C:
			s.maybeRun(time.Now())
		case <-s.done:
			log.Println("🌙 Nightly scheduler stopped")
			return
		}
	}
}

// Stop stops the scheduling loop
func (s *NightlyScheduler) Stop() {
	s.done <- true
}

// maybeRun fires the job when the hour has arrived and today has not run.
// The Redis lock inside the job handles multi-instance races; this guard
// just keeps one process from re-running on every hourly tick.
func (s *NightlyScheduler) maybeRun(now time.Time) {
	today := now.Format("2006-01-02")
	if now.Hour() < s.nightlyHour || s.lastRunDate == today {
		return
	}

	report, err := s.job.Run(context.Background(), now)
	if err != nil {
		log.Printf("❌ Nightly job failed: %v", err)
		return
	}
	if !report.Skipped {
		s.lastRunDate = today
	}
}
