package repository

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Robertja98/simple-auth/internal/models"
	"github.com/Robertja98/simple-auth/internal/store"
)

// ActivityLogRepository appends to and reads the append-only activity_log
// table.
type ActivityLogRepository struct {
	store *store.Store
}

// NewActivityLogRepository creates a new activity log repository
func NewActivityLogRepository(st *store.Store) *ActivityLogRepository {
	return &ActivityLogRepository{store: st}
}

// Append records one activity entry.
func (r *ActivityLogRepository) Append(userID int, actionType, actionDetails, ipAddress, userAgent string) error {
	rec := store.Record{
		"user_id":        strconv.Itoa(userID),
		"action_type":    actionType,
		"action_details": actionDetails,
		"ip_address":     ipAddress,
		"user_agent":     userAgent,
	}

	if _, err := r.store.Insert(store.TableActivityLog, rec); err != nil {
		return fmt.Errorf("failed to append activity entry: %w", err)
	}

	return nil
}

// ListByUser returns the user's activity entries in insertion order.
func (r *ActivityLogRepository) ListByUser(userID int) ([]*models.ActivityLogEntry, error) {
	recs, err := r.store.FetchAll(store.TableActivityLog, store.Predicate{"user_id": strconv.Itoa(userID)})
	if err != nil {
		return nil, fmt.Errorf("failed to list activity entries: %w", err)
	}

	entries := make([]*models.ActivityLogEntry, len(recs))
	for i, rec := range recs {
		entries[i] = models.ActivityLogEntryFromRecord(rec)
	}

	return entries, nil
}

// CountByUser returns how many activity entries the user has.
func (r *ActivityLogRepository) CountByUser(userID int) (int, error) {
	return r.store.Count(store.TableActivityLog, store.Predicate{"user_id": strconv.Itoa(userID)})
}

// DeleteOlderThan drops activity entries older than the cutoff. Run by the
// maintenance sweep only.
func (r *ActivityLogRepository) DeleteOlderThan(cutoff time.Time) (int, error) {
	removed, err := r.store.Cleanup(store.TableActivityLog, "created_at", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean activity log: %w", err)
	}
	return removed, nil
}

// Count returns the number of stored activity entries.
func (r *ActivityLogRepository) Count() (int, error) {
	return r.store.Count(store.TableActivityLog, nil)
}
