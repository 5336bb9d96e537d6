package ftp

import (
	"context"
	"testing"
	"time"
)

func Test_ReaperSweep(t *testing.T) {
	srv := newTestServer(t, Config{})
	start := time.Unix(10_000, 0)
	srv.now = func() time.Time { return start }

	idle := newTestSession(t, srv)
	srv.sessions.Add(idle.ID(), idle)

	srv.now = func() time.Time { return start.Add(time.Second) }
	active := newTestSession(t, srv)
	srv.sessions.Add(active.ID(), active)

	reaper := NewReaper(srv.sessions, 400*time.Second, 20*time.Second)
	reaper.SetLogger(discardLogger())

	for _, idleFor := range []time.Duration{399 * time.Second, 400 * time.Second} {
		reaper.now = func() time.Time { return start.Add(idleFor) }
		if n := reaper.Sweep(); n != 0 {
			t.Errorf("closed %d sessions after %s, want 0", n, idleFor)
		}
	}

	reaper.now = func() time.Time { return start.Add(400*time.Second + time.Millisecond) }
	if n := reaper.Sweep(); n != 1 {
		t.Errorf("closed %d sessions, want 1", n)
	}
	if !idle.isClosed() {
		t.Error("expected the idle session to be closed")
	}
	if active.isClosed() {
		t.Error("expected the active session to stay open")
	}
	if _, ok := srv.sessions.Get(idle.ID()); ok {
		t.Error("expected the idle session to be removed")
	}
	if srv.sessions.Len() != 1 {
		t.Errorf("%d sessions left, want 1", srv.sessions.Len())
	}
}

func Test_ReaperRun(t *testing.T) {
	srv := newTestServer(t, Config{})
	s := newTestSession(t, srv)
	srv.sessions.Add(s.ID(), s)

	reaper := NewReaper(srv.sessions, time.Millisecond, 5*time.Millisecond)
	reaper.SetLogger(discardLogger())
	reaper.now = func() time.Time { return time.Now().Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for !s.isClosed() {
		select {
		case <-deadline:
			t.Fatal("session was not reaped")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
