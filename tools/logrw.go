package tools

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
)

// MaxLoggedLine is the longest request line kept for logging, longer lines are dropped from the log
const MaxLoggedLine = 4096

// LogReadWriter is a wrapper around an io.ReadWriter that logs all reads and writes to a slog.Logger.
// Reads are logged one complete line at a time, so Redact always sees whole lines.
// Redact, if set, rewrites the logged text (not the data) before it is logged.
type LogReadWriter struct {
	ReadWriter io.ReadWriter
	Redact     func(string) string
	logger     *slog.Logger
	pending    []byte // request bytes read since the last newline
	overflow   bool   // the current line went past MaxLoggedLine
}

func (rw *LogReadWriter) Read(b []byte) (int, error) {
	n, err := rw.ReadWriter.Read(b)
	if rw.logger != nil && n > 0 { // Log only if n > 0 to avoid logging empty reads
		rw.logLines(b[:n])
	}
	if rw.logger != nil && err != nil && len(rw.pending) > 0 {
		// the connection ended in the middle of a line
		rw.logger.Debug("Request", "body", rw.text(rw.pending))
		rw.pending = rw.pending[:0]
	}
	return n, err
}

func (rw *LogReadWriter) logLines(b []byte) {
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			rw.hold(b)
			return
		}
		rw.hold(b[:i+1])
		if rw.overflow {
			rw.logger.Debug("Request line too long, not logged")
		} else {
			rw.logger.Debug("Request", "body", rw.text(rw.pending))
		}
		rw.pending = rw.pending[:0]
		rw.overflow = false
		b = b[i+1:]
	}
}

func (rw *LogReadWriter) hold(b []byte) {
	if rw.overflow {
		return
	}
	if len(rw.pending)+len(b) > MaxLoggedLine {
		rw.pending = rw.pending[:0]
		rw.overflow = true
		return
	}
	rw.pending = append(rw.pending, b...)
}

func (rw *LogReadWriter) Write(b []byte) (int, error) {
	if rw.logger != nil {
		rw.logger.Debug("Respond", "body", rw.text(b))
	}
	return rw.ReadWriter.Write(b)
}

func (rw *LogReadWriter) text(b []byte) string {
	s := string(b)
	if rw.Redact != nil {
		s = rw.Redact(s)
	}
	return Printable(s)
}

// NewLogReadWriter creates a new LogReadWriter.
func NewLogReadWriter(rw io.ReadWriter, logger *slog.Logger, redact func(string) string) *LogReadWriter {
	return &LogReadWriter{ReadWriter: rw, logger: logger, Redact: redact}
}

// BufLogReadWriter reads lines through a bufio.Reader and writes straight through, logging both ways.
// the reason to divide it in 2 structs is to avoid the need to implement all the methods of bufio.ReadWriter
type BufLogReadWriter struct {
	io.Writer
	*bufio.Reader
}

// NewBufLogReadWriter creates a new BufLogReadWriter around rw.
func NewBufLogReadWriter(rw io.ReadWriter, logger *slog.Logger, redact func(string) string) *BufLogReadWriter {
	lrw := NewLogReadWriter(rw, logger, redact)

	return &BufLogReadWriter{
		Reader: bufio.NewReader(lrw),
		Writer: lrw,
	}
}
