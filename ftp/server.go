package ftp

import (
	"context"
	"errors"
	"fmt"
	"github.com/hashicorp/go-multierror"
	"github.com/telebroad/ftpserver/filesystem"
	"github.com/telebroad/ftpserver/users"
	"log/slog"
	"net"
	"runtime/debug"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultBufferSize is the chunk size STOR reads the data connection with
	DefaultBufferSize = 1024
	// DefaultIdleTimeout is how long a session may stay without a command
	DefaultIdleTimeout = 400 * time.Second
	// DefaultSweepInterval is how often the reaper looks for idle sessions
	DefaultSweepInterval = 20 * time.Second
	// DefaultServerName is reported by SYST
	DefaultServerName = "FluffyJack's Custom FTP Server"
	// DefaultGreeting is sent when a client connects
	DefaultGreeting = "Connection Established"
)

// Config holds the settings of the FTP server
type Config struct {
	Host          string        // address to bind, empty for all interfaces
	Port          int           // control port, 0 picks a free port
	ServerName    string        // reported by SYST
	Greeting      string        // text of the 220 reply
	DefaultType   TransferType  // transfer type of a new session
	IdleTimeout   time.Duration // sessions idle longer than this are closed
	SweepInterval time.Duration // how often idle sessions are looked for
	BufferSize    int           // STOR read chunk size
	DialTimeout   time.Duration // timeout to connect to the client's data port, 0 for none
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		Host:          "127.0.0.1",
		Port:          21,
		ServerName:    DefaultServerName,
		Greeting:      DefaultGreeting,
		DefaultType:   TypeASCII,
		IdleTimeout:   DefaultIdleTimeout,
		SweepInterval: DefaultSweepInterval,
		BufferSize:    DefaultBufferSize,
		DialTimeout:   30 * time.Second,
	}
}

// Addr returns the address in the form "host:port"
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server is an active mode FTP server
type Server struct {
	config   Config
	fs       filesystem.FS
	users    users.Verifier
	logger   *slog.Logger
	sessions *SessionManager
	reaper   *Reaper
	now      func() time.Time // clock, replaced in tests

	mu        sync.Mutex
	listener  net.Listener
	closed    bool
	startOnce sync.Once
	ctx       context.Context // cancelled by Close
	cancel    context.CancelFunc
	wg        sync.WaitGroup // session goroutines
}

// NewServer creates a server serving fs, logins are checked with verifier.
// Zero values in cfg are replaced with the defaults.
func NewServer(cfg Config, fs filesystem.FS, verifier users.Verifier) (*Server, error) {
	if fs == nil {
		return nil, errors.New("error creating ftp server: a file system is required")
	}
	if verifier == nil {
		return nil, errors.New("error creating ftp server: a user verifier is required")
	}

	def := DefaultConfig()
	if cfg.ServerName == "" {
		cfg.ServerName = def.ServerName
	}
	if cfg.Greeting == "" {
		cfg.Greeting = def.Greeting
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		fs:       fs,
		users:    verifier,
		sessions: NewSessionManager(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.reaper = NewReaper(s.sessions, cfg.IdleTimeout, cfg.SweepInterval)
	return s, nil
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(l *slog.Logger) {
	s.logger = l
}

// Logger returns the logger for the server.
func (s *Server) Logger() *slog.Logger {
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s.logger.With("module", "ftp-server")
}

// Config returns the configuration the server runs with
func (s *Server) Config() Config {
	return s.config
}

// Sessions returns the active sessions
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Addr returns the address the server listens on, nil before it started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds the configured address and serves until Close.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		s.Logger().Error("Failed to listen", "addr", s.config.Addr(), "error", err)
		return fmt.Errorf("error starting server: %w", err)
	}
	return s.Serve(listener)
}

// TryListenAndServe starts the server in the background, if there isn't an error after d it returns nil
func (s *Server) TryListenAndServe(d time.Duration) error {
	errC := make(chan error, 1)

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case err := <-errC:
		return err
	case <-time.After(d):
		return nil
	}
}

// Serve accepts connections on l, one goroutine per client, until Close is
// called. It always returns a non-nil error, ErrServerClosed after Close.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	s.startOnce.Do(func() {
		s.reaper.SetLogger(s.Logger())
		s.reaper.now = s.now
		go s.reaper.Run(s.ctx)
	})

	s.Logger().Info("Listening on " + l.Addr().String())

	var tempDelay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = nextDelay(tempDelay)
				s.Logger().Warn("Failed to accept incoming connection, retrying", "error", err, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			s.Logger().Error("Failed to accept incoming connection", "error", err)
			return fmt.Errorf("error accepting connection: %w", err)
		}
		tempDelay = 0

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleConnection(conn)
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	session := newSession(s, conn)
	defer func() {
		if r := recover(); r != nil {
			session.logger.Error("Recovered from panic", "panic", r, "stack", string(debug.Stack()))
			_ = session.Close()
		}
	}()

	s.sessions.Add(session.ID(), session)
	// Close may have swept the sessions between accept and Add
	if s.isClosed() {
		_ = session.Close()
		return
	}

	session.logger.Info("New FTP connection")
	session.serve()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting connections, closes every session and waits for the
// session goroutines. cause is only logged.
func (s *Server) Close(cause error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	s.Logger().Info("Shutting down FTP server", "cause", cause)
	s.cancel()

	var result *multierror.Error
	if listener != nil {
		if err := listener.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("error closing listener: %w", err))
		}
	}
	for _, session := range s.sessions.List() {
		if err := session.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.wg.Wait()
	return result.ErrorOrNil()
}
