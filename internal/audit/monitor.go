package audit

import (
	"fmt"
	"log"
	"time"

	"github.com/Robertja98/simple-auth/internal/models"
	"github.com/Robertja98/simple-auth/internal/store"
)

const (
	detectionWindow = 5 * time.Minute
	detectionLimit  = 5
)

// Monitor periodically scans recent login attempts for abuse patterns.
type Monitor struct {
	store  *store.Store
	logger *Logger
}

// NewMonitor creates a new security monitor
func NewMonitor(st *store.Store, logger *Logger) *Monitor {
	return &Monitor{
		store:  st,
		logger: logger,
	}
}

// DetectFailedLogins detects identifiers with repeated failed login
// attempts in the detection window and raises a critical event.
func (m *Monitor) DetectFailedLogins() error {
	cutoff := time.Now().Add(-detectionWindow)

	attempts, err := m.store.Filter(store.TableLoginAttempts, func(rec store.Record) bool {
		return rec["success"] == "0" && store.ParseTime(rec["attempted_at"]).After(cutoff)
	})
	if err != nil {
		return fmt.Errorf("failed to scan login attempts: %w", err)
	}

	// Count failed attempts per identifier
	failedAttempts := make(map[string]int)

	for _, rec := range attempts {
		attempt := models.LoginAttemptFromRecord(rec)
		failedAttempts[attempt.UsernameOrEmail]++
		if failedAttempts[attempt.UsernameOrEmail] == detectionLimit {
			log.Printf("SECURITY ALERT: identifier %q has %d failed login attempts in last %v",
				attempt.UsernameOrEmail, failedAttempts[attempt.UsernameOrEmail], detectionWindow)

			m.logger.Log(&Event{
				Level:     LevelCritical,
				Action:    "FAILED_LOGIN_THRESHOLD",
				Details:   fmt.Sprintf("%d failed attempts for %q", failedAttempts[attempt.UsernameOrEmail], attempt.UsernameOrEmail),
				IPAddress: attempt.IPAddress,
				Success:   false,
				ErrorMsg:  "failed login threshold reached",
			})
		}
	}

	return nil
}

// DetectSuspiciousActivity runs all security checks
func (m *Monitor) DetectSuspiciousActivity() error {
	if err := m.DetectFailedLogins(); err != nil {
		log.Printf("Failed to detect failed logins: %v", err)
	}

	return nil
}
