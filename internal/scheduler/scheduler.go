// Package scheduler drives the system's time-based triggers: the midnight
// rollover, the boot-time alarm resync, and opportunistic history cleanup.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/routinely/routined/internal/alarm"
	"github.com/routinely/routined/internal/controller"
	"github.com/routinely/routined/internal/db"
)

// DefaultRolloverSpec fires at local midnight.
const DefaultRolloverSpec = "0 0 * * *"

// historyGCSpec runs the orphaned-history sweep well away from the rollover.
const historyGCSpec = "0 3 * * *"

// Service owns the cron loop and the alarm engine lifecycle.
type Service struct {
	cron       *cron.Cron
	db         *db.DB
	controller *controller.Controller
	engine     *alarm.Engine
	mu         sync.Mutex
	running    bool
}

// New creates a service. rolloverSpec is a standard 5-field cron expression;
// pass DefaultRolloverSpec for local midnight.
func New(database *db.DB, ctrl *controller.Controller, engine *alarm.Engine, rolloverSpec string) (*Service, error) {
	s := &Service{
		cron:       cron.New(),
		db:         database,
		controller: ctrl,
		engine:     engine,
	}

	if rolloverSpec == "" {
		rolloverSpec = DefaultRolloverSpec
	}
	if _, err := s.cron.AddFunc(rolloverSpec, s.runRollover); err != nil {
		return nil, fmt.Errorf("scheduler: invalid rollover spec %q: %w", rolloverSpec, err)
	}
	if _, err := s.cron.AddFunc(historyGCSpec, s.runHistoryGC); err != nil {
		return nil, fmt.Errorf("scheduler: history gc spec: %w", err)
	}

	return s, nil
}

// Start launches the alarm engine, performs the boot resync (all platform
// alarms are lost across restarts), then begins the cron loop. The resync
// runs to completion before Start returns; there is no detached catch-up
// work.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.engine.Start()

	res, err := s.controller.RescheduleAll()
	if err != nil {
		s.engine.Stop()
		return fmt.Errorf("scheduler: boot resync: %w", err)
	}
	slog.Info("boot resync complete", "processed", res.Processed, "scheduled", res.Scheduled, "failed", res.Failed)

	s.cron.Start()
	s.running = true
	return nil
}

// Stop halts the cron loop, waits for in-flight jobs, then stops the engine.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.engine.Stop()
}

// RunRolloverNow triggers a rollover outside the cron schedule.
func (s *Service) RunRolloverNow() (controller.BatchResult, error) {
	return s.controller.Rollover()
}

func (s *Service) runRollover() {
	res, err := s.controller.Rollover()
	if err != nil {
		slog.Error("midnight rollover failed", "error", err)
		return
	}
	slog.Info("midnight rollover complete",
		"processed", res.Processed, "reset", res.Reset, "scheduled", res.Scheduled, "failed", res.Failed)
}

func (s *Service) runHistoryGC() {
	n, err := s.db.DeleteOrphanedHistory()
	if err != nil {
		slog.Error("history gc failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("history gc removed orphaned records", "count", n)
	}
}
