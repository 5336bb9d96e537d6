package ftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DataChannel is the secondary connection the server opens to the address a
// client announced with PORT. It carries one transfer and is then closed.
type DataChannel struct {
	conn     net.Conn
	once     sync.Once
	closeErr error
}

// ParsePortArg parses the PORT argument "h1,h2,h3,h4,p1,p2" into the address
// h1.h2.h3.h4 and the port p1*256+p2.
func ParsePortArg(arg string) (*net.TCPAddr, error) {
	parts := strings.Split(strings.TrimSpace(arg), ",")
	if len(parts) != 6 {
		return nil, fmt.Errorf("invalid PORT argument %q: expected h1,h2,h3,h4,p1,p2", arg)
	}

	var octets [6]byte
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 255 {
			return nil, fmt.Errorf("invalid PORT argument %q: %q is not a number between 0 and 255", arg, part)
		}
		octets[i] = byte(n)
	}

	port := int(octets[4])*256 + int(octets[5])
	if port == 0 {
		return nil, fmt.Errorf("invalid PORT argument %q: port 0", arg)
	}
	return &net.TCPAddr{
		IP:   net.IPv4(octets[0], octets[1], octets[2], octets[3]),
		Port: port,
	}, nil
}

// OpenActive connects to addr. A failure wraps ErrConnect.
func OpenActive(ctx context.Context, addr *net.TCPAddr, timeout time.Duration) (*DataChannel, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("%w to %s: %w", ErrConnect, addr, err)
	}
	return &DataChannel{conn: conn}, nil
}

// RemoteAddr returns the client side of the data connection
func (d *DataChannel) RemoteAddr() net.Addr {
	return d.conn.RemoteAddr()
}

// Send copies r to the client and returns the number of bytes read from r.
// In ASCII mode bare LF line endings are sent as CRLF.
// A failed write to the client wraps errTransferAborted.
func (d *DataChannel) Send(r io.Reader, t TransferType) (int64, error) {
	var w io.Writer = &abortWriter{w: d.conn}
	if t == TypeASCII {
		w = &asciiWriter{w: w}
	}

	counter := &countingReader{r: r}
	_, err := io.Copy(w, counter)
	if err != nil {
		if errors.Is(err, errTransferAborted) {
			return counter.n, err
		}
		return counter.n, fmt.Errorf("error reading file: %w", err)
	}
	return counter.n, nil
}

// Receive reads from the client in chunks of bufferSize until the client closes
// the connection, writing everything to w. It returns the number of bytes written
// to w, so in ASCII mode, where CRLF line endings are stored as LF, it matches
// what Send reports for the same file.
func (d *DataChannel) Receive(w io.Writer, t TransferType, bufferSize int) (int64, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	counter := &countingWriter{w: w}
	w = counter

	var strip *asciiStripWriter
	if t == TypeASCII {
		strip = &asciiStripWriter{w: w}
		w = strip
	}

	buf := make([]byte, bufferSize)
	for {
		n, err := d.conn.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return counter.n, fmt.Errorf("writing file error: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return counter.n, fmt.Errorf("error reading data connection: %w", err)
		}
	}

	if strip != nil {
		if err := strip.Flush(); err != nil {
			return counter.n, fmt.Errorf("writing file error: %w", err)
		}
	}
	return counter.n, nil
}

// Close closes the connection. It is safe to call more than once and from
// more than one goroutine.
func (d *DataChannel) Close() error {
	d.once.Do(func() {
		d.closeErr = d.conn.Close()
	})
	return d.closeErr
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// abortWriter marks write errors so they can be told apart from read errors
type abortWriter struct {
	w io.Writer
}

func (a *abortWriter) Write(p []byte) (int, error) {
	n, err := a.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", errTransferAborted, err)
	}
	return n, nil
}
