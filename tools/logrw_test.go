package tools

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type readWriter struct {
	io.Reader
	io.Writer
}

func Test_BufLogReadWriter(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var out bytes.Buffer
	conn := readWriter{Reader: strings.NewReader("PASS secret\r\nNOOP\r\n"), Writer: &out}
	redact := func(s string) string { return strings.ReplaceAll(s, "secret", "****") }
	rw := NewBufLogReadWriter(conn, logger, redact)

	line, err := rw.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "PASS secret\r\n" {
		t.Errorf("read %q, the data must not be redacted", line)
	}
	if _, err := io.WriteString(rw, "230 Logged in successfully\r\n"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "230 Logged in successfully\r\n" {
		t.Errorf("wrote %q", out.String())
	}

	if strings.Contains(logs.String(), "secret") {
		t.Errorf("password leaked to the log: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "230 Logged in successfully") {
		t.Errorf("response missing from the log: %s", logs.String())
	}
}

func Test_LogReadWriterSplitLines(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
	}{
		{"whole line", []string{"PASS secret\r\n"}},
		{"verb split", []string{"PA", "SS secret\r\n"}},
		{"password split", []string{"PASS sec", "ret\r\n"}},
		{"byte by byte", strings.Split("PASS secret\r\n", "")},
		{"no newline before EOF", []string{"PA", "SS secret"}},
	}
	redact := func(s string) string {
		if strings.HasPrefix(s, "PASS ") {
			return "PASS ****"
		}
		return s
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

			readers := make([]io.Reader, len(tt.chunks))
			for i, chunk := range tt.chunks {
				readers[i] = strings.NewReader(chunk)
			}
			conn := readWriter{Reader: io.MultiReader(readers...), Writer: io.Discard}
			rw := NewBufLogReadWriter(conn, logger, redact)

			data, err := io.ReadAll(rw)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != strings.Join(tt.chunks, "") {
				t.Errorf("read %q", data)
			}
			for _, leak := range []string{"secret", "sec", "ret"} {
				if strings.Contains(logs.String(), leak) {
					t.Errorf("password leaked to the log: %s", logs.String())
					break
				}
			}
			if !strings.Contains(logs.String(), "PASS ****") {
				t.Errorf("redacted line missing from the log: %s", logs.String())
			}
		})
	}
}

func Test_LogReadWriterLongLine(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	long := strings.Repeat("x", MaxLoggedLine+1) + "\r\nNOOP\r\n"
	rw := NewLogReadWriter(readWriter{Reader: strings.NewReader(long), Writer: io.Discard}, logger, nil)
	if _, err := io.Copy(io.Discard, rw); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(logs.String(), "xxxx") {
		t.Error("expected the long line to be left out of the log")
	}
	if !strings.Contains(logs.String(), "NOOP") {
		t.Errorf("expected the next line to be logged: %s", logs.String())
	}
}

func Test_Printable(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"USER jack\r\n", "USER jack"},
		{"tab\there", "tabhere"},
		{"ünïcode", "ünïcode"},
	}
	for _, tt := range tests {
		if got := Printable(tt.in); got != tt.want {
			t.Errorf("Printable(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got := Printable([]byte(tt.in)); got != tt.want {
			t.Errorf("Printable([]byte(%q)) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
