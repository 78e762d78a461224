package services

import (
	"time"

	"github.com/go-co-op/gocron"

	"docqa-platform/internal/index"
	"docqa-platform/internal/logger"
)

// Janitor periodically evicts idle user indexes from the in-memory cache.
// Evicted state is reloaded from disk on next access, so the sweep only
// trades memory for a reload.
type Janitor struct {
	scheduler *gocron.Scheduler
	manager   *index.Manager
	maxIdle   time.Duration
}

func NewJanitor(manager *index.Manager, maxIdle time.Duration) *Janitor {
	return &Janitor{
		scheduler: gocron.NewScheduler(time.UTC),
		manager:   manager,
		maxIdle:   maxIdle,
	}
}

func (j *Janitor) Start() error {
	interval := j.maxIdle / 2
	if interval < time.Minute {
		interval = time.Minute
	}

	_, err := j.scheduler.Every(interval).Do(func() {
		evicted := j.manager.EvictIdle(j.maxIdle)
		if evicted > 0 {
			logger.Info("Evicted idle user indexes", "count", evicted,
				"resident", j.manager.CachedUsers())
		}
	})
	if err != nil {
		return err
	}

	j.scheduler.StartAsync()
	logger.Info("Index janitor started", "max_idle", j.maxIdle.String(), "sweep_interval", interval.String())
	return nil
}

func (j *Janitor) Stop() {
	j.scheduler.Stop()
}
