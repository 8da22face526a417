// Package maintenance reclaims old rows outside the interactive paths:
// expired sessions, stale login attempts and aged activity entries.
package maintenance

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Robertja98/simple-auth/internal/repository"
)

const (
	attemptRetentionDays  = 30
	activityRetentionDays = 90
)

// Report summarizes one sweep.
type Report struct {
	ExpiredSessions int
	OldAttempts     int
	OldActivities   int
}

type Sweeper struct {
	sessions   *repository.SessionRepository
	attempts   *repository.LoginAttemptRepository
	activities *repository.ActivityLogRepository
}

// NewSweeper creates a maintenance sweeper over the three reclaimable
// tables.
func NewSweeper(
	sessions *repository.SessionRepository,
	attempts *repository.LoginAttemptRepository,
	activities *repository.ActivityLogRepository,
) *Sweeper {
	return &Sweeper{
		sessions:   sessions,
		attempts:   attempts,
		activities: activities,
	}
}

// Sweep removes expired sessions, login attempts older than 30 days and
// activity entries older than 90 days. Each table is an independent atomic
// rewrite; a failure in one does not undo the others.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	now := time.Now()
	report := &Report{}

	expired, err := s.sessions.DeleteExpired(now)
	if err != nil {
		return report, fmt.Errorf("session sweep failed: %w", err)
	}
	report.ExpiredSessions = expired

	attempts, err := s.attempts.DeleteOlderThan(now.AddDate(0, 0, -attemptRetentionDays))
	if err != nil {
		return report, fmt.Errorf("login attempt sweep failed: %w", err)
	}
	report.OldAttempts = attempts

	activities, err := s.activities.DeleteOlderThan(now.AddDate(0, 0, -activityRetentionDays))
	if err != nil {
		return report, fmt.Errorf("activity log sweep failed: %w", err)
	}
	report.OldActivities = activities

	return report, nil
}

// Start runs the sweep on the given interval until the context is
// cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("[Maintenance] Sweep error: %v", err)
				continue
			}
			log.Printf("[Maintenance] Removed %d expired sessions, %d old attempts, %d old activities",
				report.ExpiredSessions, report.OldAttempts, report.OldActivities)
		}
	}
}
