// Package sftp serves the FTP root over SFTP, with the same users and the same path confinement.
package sftp

import (
	"errors"
	"fmt"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/sftp"
	"github.com/telebroad/ftpserver/filesystem"
	"github.com/telebroad/ftpserver/users"
	"golang.org/x/crypto/ssh"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// ErrServerClosed is returned by Serve after Close
var ErrServerClosed = errors.New("sftp: server closed")

type Server struct {
	Addr       string
	PrivateKey []byte

	logger    *slog.Logger
	fs        *filesystem.LocalFS
	users     users.Verifier
	sshConfig *ssh.ServerConfig

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewSFTPServer(addr string, fs *filesystem.LocalFS, verifier users.Verifier) *Server {
	return &Server{
		Addr:  addr,
		fs:    fs,
		users: verifier,
		conns: make(map[net.Conn]struct{}),
	}
}

// SetPrivateKey sets the PEM host key of the server.
// if not called the server will generate a new key
func (s *Server) SetPrivateKey(pk []byte) {
	s.PrivateKey = pk
}

func (s *Server) SetPrivateKeyFile(pk string) error {
	file, err := os.ReadFile(pk)
	if err != nil {
		return fmt.Errorf("error reading private key file: %w", err)
	}
	s.PrivateKey = file
	return nil
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
	return s.logger.With("module", "sftp-server")
}

func (s *Server) setup() error {
	if s.PrivateKey == nil {
		pk, err := GenerateHostKey("ed25519")
		if err != nil {
			return fmt.Errorf("error generating host key: %w", err)
		}
		s.PrivateKey = pk
	}

	privateKey, err := ssh.ParsePrivateKey(s.PrivateKey)
	if err != nil {
		s.Logger().Error("Error parsing private key", "error", err)
		return fmt.Errorf("error parsing private key: %w", err)
	}

	s.sshConfig = &ssh.ServerConfig{
		PasswordCallback: s.AuthHandler,
	}
	s.sshConfig.AddHostKey(privateKey)
	return nil
}

func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger().Error("Failed to listen", "error", err)
		return fmt.Errorf("failed to listen: %w", err)
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

// Serve accepts SSH connections on listener until Close is called
func (s *Server) Serve(listener net.Listener) error {
	if err := s.setup(); err != nil {
		_ = listener.Close()
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = listener.Close()
		return ErrServerClosed
	}
	s.listener = listener
	s.mu.Unlock()

	s.Logger().Info("Listening on " + listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.Logger().Warn("Failed to accept incoming connection", "error", err)
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return fmt.Errorf("failed to accept incoming connection: %w", err)
		}

		if !s.track(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		go s.sshHandler(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Close stops the listener and closes all the connections
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	var result *multierror.Error
	if listener != nil {
		if err := listener.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("error closing listener: %w", err))
		}
	}
	for _, conn := range conns {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
	}
	s.wg.Wait()
	return result.ErrorOrNil()
}

// AuthHandler is called by the SSH server when a client attempts to authenticate.
func (s *Server) AuthHandler(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
	s.Logger().Debug("Login attempt", "user", c.User(), "remote", c.RemoteAddr().String())
	if s.users.Verify(c.User(), string(pass)) {
		return nil, nil
	}
	return nil, fmt.Errorf("password rejected for %q", c.User())
}

func (s *Server) sshHandler(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	// Upgrade the connection to an SSH connection.
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.sshConfig)
	if err != nil {
		s.Logger().Info("Failed to handshake", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	defer sshConn.Close()

	logger := s.Logger().With("remote", sshConn.RemoteAddr().String(), "ssh-user", sshConn.User())
	logger.Info("New SSH connection", "ClientVersion", string(sshConn.ClientVersion()))

	// The incoming Request channel must be serviced.
	go ssh.DiscardRequests(reqs)

	var channels sync.WaitGroup
	defer channels.Wait()

	// Service the incoming Channel channel.
	for newChannel := range chans {
		// The SFTP server operates over a single channel of type "session".
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			logger.Error("Could not accept channel", "error", err)
			return
		}

		go s.filterHandler(requests, logger)

		channels.Add(1)
		go func() {
			defer channels.Done()
			s.serveSFTP(channel, logger)
		}()
	}
}

func (s *Server) serveSFTP(channel ssh.Channel, logger *slog.Logger) {
	server := sftp.NewRequestServer(channel, NewHandlers(s.fs, logger))
	if err := server.Serve(); err == io.EOF {
		logger.Info("sftp client exited session.")
	} else if err != nil {
		logger.Debug("sftp server completed with error", "error", err)
	}
	_ = server.Close()
}

// filterHandler accepts only the sftp subsystem request.
func (s *Server) filterHandler(in <-chan *ssh.Request, logger *slog.Logger) {
	for req := range in {
		logger.Debug("Request", "type", req.Type)

		ok := false
		switch req.Type {
		case "subsystem":
			if len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp" {
				ok = true
			}
		}
		if err := req.Reply(ok, nil); err != nil {
			logger.Error("Failed to reply", "error", err)
			return
		}
	}
}
