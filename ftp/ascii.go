package ftp

import "io"

// asciiWriter converts LF to CRLF on the fly for RETR and LIST.
// A CRLF that is already in the file is sent unchanged.
type asciiWriter struct {
	w      io.Writer
	prevCR bool
	buf    []byte
}

func (a *asciiWriter) Write(p []byte) (int, error) {
	a.buf = a.buf[:0]
	for _, b := range p {
		if b == '\n' && !a.prevCR {
			a.buf = append(a.buf, '\r')
		}
		a.buf = append(a.buf, b)
		a.prevCR = b == '\r'
	}
	if _, err := a.w.Write(a.buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// asciiStripWriter converts CRLF to LF for STOR. A CR not followed by LF is kept.
// Flush must be called at the end to write a trailing CR.
type asciiStripWriter struct {
	w         io.Writer
	pendingCR bool
	buf       []byte
}

func (a *asciiStripWriter) Write(p []byte) (int, error) {
	a.buf = a.buf[:0]
	for _, b := range p {
		if a.pendingCR {
			a.pendingCR = false
			if b != '\n' {
				a.buf = append(a.buf, '\r')
			}
		}
		if b == '\r' {
			a.pendingCR = true
			continue
		}
		a.buf = append(a.buf, b)
	}
	if len(a.buf) > 0 {
		if _, err := a.w.Write(a.buf); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (a *asciiStripWriter) Flush() error {
	if !a.pendingCR {
		return nil
	}
	a.pendingCR = false
	_, err := a.w.Write([]byte{'\r'})
	return err
}
