package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/halim/overlook/internal/model"
)

// startSweep schedules the stale-halting sweep. Sessions stuck in halting
// past the cutoff usually mean the agent process died without the runner
// finalizing them.
func (s *Server) startSweep() error {
	if s.sweepSchedule == "" {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(s.sweepSchedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.sweepSchedule, err)
	}

	s.cron = cron.New(cron.WithParser(parser))
	if _, err := s.cron.AddFunc(s.sweepSchedule, s.sweepStaleHalting); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()

	s.logger.Info().Str("schedule", s.sweepSchedule).Msg("Stale session sweep scheduled")
	return nil
}

func (s *Server) sweepStaleHalting() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.staleAfter)
	ids, err := s.store.Sessions().MarkStaleHalting(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("Stale session sweep failed")
		return
	}
	if len(ids) == 0 {
		return
	}

	s.logger.Warn().Ints64("sessionIds", ids).Msg("Marked stale halting sessions as errored")
	for _, id := range ids {
		s.broadcaster.SessionStatusChanged(id, model.StatusError)
	}
}
