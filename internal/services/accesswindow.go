package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"wallet-gate-api/internal/config"
	"wallet-gate-api/pkg/logger"

	"go.uber.org/zap"
)

// WindowState enumerates the free-access window states
type WindowState int

const (
	StateUninitialized WindowState = iota
	StateOpenUnconditionally
	StateTimedOpen
	StateTimedClosed
)

// launchRecord is the persisted launch timestamp, one JSON document on disk
type launchRecord struct {
	LaunchTime time.Time `json:"launch_time"`
}

// AccessWindow tracks the global free-access period during which tier and
// quota enforcement is bypassed. Launch time resolution priority:
// permanent-open flag, configured timestamp, persisted timestamp from a
// prior run, then implicit start-now on first boot.
type AccessWindow struct {
	mu        sync.Mutex
	state     WindowState
	launch    time.Time
	duration  time.Duration
	statePath string
	stopCh    chan struct{}
	stopped   bool
	nowFn     func() time.Time
}

// NewAccessWindow resolves the initial window state and starts the
// countdown ticker for timed windows.
func NewAccessWindow(cfg *config.AccessWindowConfig) *AccessWindow {
	aw := &AccessWindow{
		state:     StateUninitialized,
		duration:  cfg.Duration,
		statePath: cfg.StatePath,
		stopCh:    make(chan struct{}),
		nowFn:     time.Now,
	}

	log := logger.GetLogger()

	if cfg.Open {
		aw.state = StateOpenUnconditionally
		log.Info("Free-access window permanently open")
		return aw
	}

	configured := false
	if cfg.LaunchTime != "" {
		launch, err := time.Parse(time.RFC3339, cfg.LaunchTime)
		if err != nil {
			// Fall through to the persisted record rather than silently
			// starting a fresh window
			log.Error("Invalid configured launch time, ignoring it",
				zap.String("launch_time", cfg.LaunchTime),
				zap.Error(err),
			)
		} else {
			aw.launch = launch
			configured = true
		}
	}

	switch {
	case configured:
	case aw.loadPersisted():
		log.Info("Restored free-access launch time", zap.Time("launch_time", aw.launch))
	default:
		// First boot with nothing configured starts the clock
		log.Warn("No launch time configured or persisted, starting free-access window now")
		aw.startLocked()
	}

	aw.refreshLocked()

	go aw.tick()

	return aw
}

// IsOpen reports whether free access is currently active
func (aw *AccessWindow) IsOpen() bool {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if aw.state == StateOpenUnconditionally {
		return true
	}
	return aw.openAtLocked(aw.nowFn())
}

// Remaining returns how long the window stays open, 0 when closed.
// Permanent windows report the zero duration; check Permanent instead.
func (aw *AccessWindow) Remaining() time.Duration {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if aw.state == StateOpenUnconditionally || !aw.openAtLocked(aw.nowFn()) {
		return 0
	}
	return aw.launch.Add(aw.duration).Sub(aw.nowFn())
}

// Permanent reports whether the window is unconditionally open
func (aw *AccessWindow) Permanent() bool {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.state == StateOpenUnconditionally
}

// LaunchTime returns the resolved launch time; the zero time means none
// (permanent-open windows have no countdown).
func (aw *AccessWindow) LaunchTime() time.Time {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.launch
}

// State returns the current window state
func (aw *AccessWindow) State() WindowState {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.state
}

// Start begins a new window now and persists the launch time. A no-op for
// permanently open windows.
func (aw *AccessWindow) Start() {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if aw.state == StateOpenUnconditionally {
		return
	}
	aw.startLocked()
	aw.refreshLocked()
}

func (aw *AccessWindow) startLocked() {
	aw.launch = aw.nowFn()
	aw.persistLocked()
}

// openAtLocked reports whether now falls inside [launch, launch+duration)
func (aw *AccessWindow) openAtLocked(now time.Time) bool {
	if aw.launch.IsZero() {
		return false
	}
	return !now.Before(aw.launch) && now.Before(aw.launch.Add(aw.duration))
}

// refreshLocked recomputes the timed state from the clock
func (aw *AccessWindow) refreshLocked() {
	if aw.state == StateOpenUnconditionally {
		return
	}
	if aw.openAtLocked(aw.nowFn()) {
		aw.state = StateTimedOpen
	} else {
		aw.state = StateTimedClosed
	}
}

// tick flips timed-open to timed-closed once the window elapses
func (aw *AccessWindow) tick() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			aw.mu.Lock()
			wasOpen := aw.state == StateTimedOpen
			aw.refreshLocked()
			if wasOpen && aw.state == StateTimedClosed {
				logger.GetLogger().Info("Free-access window closed",
					zap.Time("launch_time", aw.launch),
					zap.Duration("duration", aw.duration),
				)
			}
			aw.mu.Unlock()
		case <-aw.stopCh:
			return
		}
	}
}

// Stop halts the countdown ticker
func (aw *AccessWindow) Stop() {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if !aw.stopped {
		aw.stopped = true
		close(aw.stopCh)
	}
}

// loadPersisted restores a launch time written by a prior run
func (aw *AccessWindow) loadPersisted() bool {
	data, err := os.ReadFile(aw.statePath)
	if err != nil {
		return false
	}

	var record launchRecord
	if err := json.Unmarshal(data, &record); err != nil || record.LaunchTime.IsZero() {
		return false
	}

	aw.launch = record.LaunchTime
	return true
}

// persistLocked writes the launch time to disk; failure is logged, not fatal
func (aw *AccessWindow) persistLocked() {
	record := launchRecord{LaunchTime: aw.launch}
	data, err := json.Marshal(record)
	if err != nil {
		logger.GetLogger().Error("Failed to encode launch record", zap.Error(err))
		return
	}

	if dir := filepath.Dir(aw.statePath); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}

	if err := os.WriteFile(aw.statePath, data, 0o644); err != nil {
		logger.GetLogger().Error("Failed to persist launch record",
			zap.Error(err),
			zap.String("path", aw.statePath),
		)
	}
}
