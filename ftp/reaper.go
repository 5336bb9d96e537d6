package ftp

import (
	"context"
	"log/slog"
	"time"
)

// Reaper closes sessions that sent no command for longer than the idle timeout
type Reaper struct {
	sessions    *SessionManager
	idleTimeout time.Duration
	interval    time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

func NewReaper(sessions *SessionManager, idleTimeout, interval time.Duration) *Reaper {
	return &Reaper{
		sessions:    sessions,
		idleTimeout: idleTimeout,
		interval:    interval,
		now:         time.Now,
	}
}

// SetLogger sets the logger for the reaper.
func (r *Reaper) SetLogger(l *slog.Logger) {
	r.logger = l
}

// Logger returns the logger for the reaper.
func (r *Reaper) Logger() *slog.Logger {
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r.logger.With("module", "ftp-reaper")
}

// Sweep closes every session idle for more than the timeout and returns how many were closed
func (r *Reaper) Sweep() int {
	now := r.now()
	closed := 0
	for _, session := range r.sessions.List() {
		idle := now.Sub(session.LastActivity())
		if idle <= r.idleTimeout {
			continue
		}
		r.Logger().Info("Closing idle session", "session", session.ID(), "idle", idle.Round(time.Second))
		if err := session.Close(); err != nil {
			r.Logger().Debug("error closing idle session", "session", session.ID(), "error", err)
		}
		closed++
	}
	return closed
}

// Run sweeps every interval until ctx is done
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
