package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Robertja98/simple-auth/internal/repository"
)

// Logger records security events. Every event is appended as a JSON line to
// the audit log file; events flagged as activity additionally land in the
// activity_log table when activity logging is enabled.
type Logger struct {
	activities      *repository.ActivityLogRepository
	logFile         *os.File
	activityEnabled bool
	asyncMode       bool
	eventQueue      chan *Event
	wg              sync.WaitGroup
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewLogger creates a new audit logger
func NewLogger(activities *repository.ActivityLogRepository, logFilePath string, activityEnabled, asyncMode bool) (*Logger, error) {
	// Ensure log directory exists
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file
	logFile, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger := &Logger{
		activities:      activities,
		logFile:         logFile,
		activityEnabled: activityEnabled,
		asyncMode:       asyncMode,
		ctx:             ctx,
		cancel:          cancel,
	}

	if asyncMode {
		logger.eventQueue = make(chan *Event, 1000)
		logger.startAsyncLogger()
	}

	return logger, nil
}

// Log records an audit event
func (al *Logger) Log(event *Event) error {
	event.Timestamp = time.Now()

	if al.asyncMode {
		select {
		case al.eventQueue <- event:
			return nil
		default:
			return fmt.Errorf("audit log queue is full")
		}
	}

	return al.writeEvent(event)
}

// LogActivity records one of the canonical user activities. The entry goes
// to the activity_log table (when enabled) and to the audit log file.
func (al *Logger) LogActivity(userID int, actionType, details, ipAddress, userAgent string) error {
	return al.Log(&Event{
		Level:     LevelInfo,
		UserID:    &userID,
		Action:    actionType,
		Details:   details,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
		activity:  true,
	})
}

// writeEvent writes event to the activity table and the log file
func (al *Logger) writeEvent(event *Event) error {
	if event.activity && al.activityEnabled && event.UserID != nil {
		if err := al.activities.Append(*event.UserID, event.Action, event.Details, event.IPAddress, event.UserAgent); err != nil {
			log.Printf("Failed to write activity entry: %v", err)
			// Continue to write to file even if the table write fails
		}
	}

	// Write to file (JSON format)
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := al.logFile.Write(append(jsonData, '\n')); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}

	return nil
}

// startAsyncLogger starts async logging worker
func (al *Logger) startAsyncLogger() {
	al.wg.Add(1)
	go func() {
		defer al.wg.Done()
		for {
			select {
			case event := <-al.eventQueue:
				if err := al.writeEvent(event); err != nil {
					log.Printf("Failed to write audit event: %v", err)
				}
			case <-al.ctx.Done():
				// Drain remaining events
				for len(al.eventQueue) > 0 {
					event := <-al.eventQueue
					al.writeEvent(event)
				}
				return
			}
		}
	}()
}

// Close closes the audit logger
func (al *Logger) Close() error {
	if al.asyncMode {
		al.cancel()
		al.wg.Wait()
		close(al.eventQueue)
	}

	return al.logFile.Close()
}
