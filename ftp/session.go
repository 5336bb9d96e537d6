package ftp

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"github.com/hashicorp/go-multierror"
	"github.com/telebroad/ftpserver/filesystem"
	"github.com/telebroad/ftpserver/tools"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Session represents an individual client FTP session.
// The fields below mu are only touched by the goroutine running serve.
type Session struct {
	id         string                  // Unique ID in the SessionManager
	server     *Server                 // The server the session belongs to
	conn       net.Conn                // The control connection to the client
	readWriter *tools.BufLogReadWriter // ReadWriter for the connection (used for reading commands and writing replies)
	logger     *slog.Logger
	ctx        context.Context // cancelled when the session closes
	cancel     context.CancelFunc

	lastActivity atomic.Int64 // unix nanoseconds of the last command

	mu     sync.Mutex   // Protects closed and dataChannel, Close can come from the reaper
	closed bool         // control connection closed
	data   *DataChannel // data connection opened by PORT

	transferType TransferType // ASCII or binary, set by TYPE
	authState    AuthState    // Authentication status
	username     string       // Username given with USER
	workingDir   string       // Current working directory, a real path under the root
	renamingFile string       // File to be renamed, set by RNFR
	quit         bool         // close after the current reply
}

func newSession(server *Server, conn net.Conn) *Session {
	ctx, cancel := context.WithCancel(server.ctx)
	s := &Session{
		id:           generateSessionID(),
		server:       server,
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		transferType: server.config.DefaultType,
		authState:    StateUnauthenticated,
		workingDir:   server.fs.Root(),
	}
	s.logger = server.Logger().With("session", s.id, "remote", conn.RemoteAddr().String())
	s.readWriter = tools.NewBufLogReadWriter(conn, s.logger, redactPassword)
	s.touch()
	return s
}

// generateSessionID generates a unique 8-character session ID.
func generateSessionID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%08x", b)
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// LastActivity returns the time the last command was received
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch() {
	s.lastActivity.Store(s.server.now().UnixNano())
}

func (s *Session) fs() filesystem.FS {
	return s.server.fs
}

// serve sends the greeting and then reads, dispatches and replies until the
// control connection is closed.
func (s *Session) serve() {
	defer s.Close()

	s.reply(reply(StatusServiceReadyForNewUser, "%s", s.server.config.Greeting))

	for !s.isClosed() {
		line, err := readLine(s.readWriter.Reader, maxLineLength)
		if errors.Is(err, errLineTooLong) {
			s.logger.Warn("command line too long, closing", "limit", maxLineLength)
			s.reply(reply(StatusSyntaxError, "Command line too long"))
			return
		}
		if line != "" {
			if response, ok := s.dispatch(line); ok {
				s.reply(response)
			}
			if s.quit {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				s.logger.Debug("error reading from connection", "error", err)
			}
			return
		}
	}
}

// maxLineLength is the longest command line accepted, the connection is closed on longer lines
const maxLineLength = 4096

var errLineTooLong = errors.New("command line too long")

// readLine reads up to and including the next '\n'. It stops with errLineTooLong
// once more than limit bytes arrived without one.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > limit {
			return "", errLineTooLong
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(line), err
	}
}

// dispatch runs one command line and returns the reply.
// ok is false when nothing should be sent back.
func (s *Session) dispatch(line string) (response string, ok bool) {
	s.touch()
	if strings.TrimSpace(line) == "" {
		return "", false
	}

	verb, arg := parseCommand(line)
	cmd, found := commandTable[verb]
	if !found {
		s.logger.Debug("unknown command", "command", verb)
		return reply(StatusSyntaxErrorNotImplemented, "Command not implemented"), true
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic", "command", verb, "panic", r, "stack", string(debug.Stack()))
			response, ok = reply(StatusSyntaxError, "Server Error: %v", r), true
		}
	}()

	if cmd.pathArg {
		if arg == "" {
			return reply(StatusSyntaxErrorInParameters, "Syntax error in parameters or arguments"), true
		}
		realPath, err := s.fs().ToReal(s.workingDir, arg)
		if err != nil {
			s.logger.Warn("path rejected", "command", verb, "path", arg, "error", err)
			return errorReply(err), true
		}
		arg = realPath
	}

	response, err := cmd.handler(s, arg)
	if err != nil {
		s.logger.Debug("command failed", "command", verb, "error", err)
		return errorReply(err), true
	}
	return response, true
}

// parseCommand splits a line into the verb (the first 4 characters, upper case)
// and the argument (the remaining words joined by single spaces).
func parseCommand(line string) (verb, arg string) {
	head := line
	if len(head) > 4 {
		head = head[:4]
	}
	verb = strings.ToUpper(strings.TrimSpace(head))

	fields := strings.Fields(line)
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}
	return verb, arg
}

// reply writes one reply line to the control connection
func (s *Session) reply(msg string) {
	if s.isClosed() {
		return
	}
	if _, err := fmt.Fprintf(s.readWriter, "%s\r\n", msg); err != nil {
		s.logger.Debug("error writing reply", "error", err)
	}
}

// logout marks the session to be closed after the reply is sent
func (s *Session) logout() string {
	s.quit = true
	s.authState = StateUnauthenticated
	s.username = ""
	return reply(StatusServiceClosingControlConnection, "Logged out successfully")
}

// dataChannel returns the data connection opened by PORT, nil if there is none
func (s *Session) dataChannel() *DataChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// setDataChannel stores d, closing the previous data connection first
func (s *Session) setDataChannel(d *DataChannel) {
	s.closeDataChannel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = d.Close()
		return
	}
	s.data = d
}

// closeDataChannel closes and forgets the data connection
func (s *Session) closeDataChannel() {
	s.mu.Lock()
	d := s.data
	s.data = nil
	s.mu.Unlock()
	if d != nil {
		if err := d.Close(); err != nil {
			s.logger.Debug("error closing data connection", "error", err)
		}
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes the control and data connections and removes the session from
// the server. It can be called from any goroutine, more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	data := s.data
	s.data = nil
	s.mu.Unlock()

	s.cancel()

	var result *multierror.Error
	if data != nil {
		if err := data.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("error closing data connection: %w", err))
		}
	}
	if err := s.conn.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("error closing control connection: %w", err))
	}
	s.server.sessions.Remove(s.id)
	s.logger.Info("Session closed")
	return result.ErrorOrNil()
}

// redactPassword hides the argument of PASS in the connection log
func redactPassword(s string) string {
	lines := strings.SplitAfter(s, "\n")
	for i, line := range lines {
		if len(line) >= 4 && strings.EqualFold(line[:4], PASS) {
			lines[i] = PASS + " ****\r\n"
		}
	}
	return strings.Join(lines, "")
}
