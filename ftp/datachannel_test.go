package ftp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func Test_ParsePortArg(t *testing.T) {
	tests := []struct {
		arg      string
		wantAddr string
		wantErr  bool
	}{
		{"127,0,0,1,7,5", "127.0.0.1:1797", false},
		{"192,168,1,10,0,21", "192.168.1.10:21", false},
		{" 10,0,0,1,255,255 ", "10.0.0.1:65535", false},
		{"127,0,0,1,7", "", true},
		{"127,0,0,1,7,5,1", "", true},
		{"127,0,0,256,7,5", "", true},
		{"127,0,0,-1,7,5", "", true},
		{"127,0,0,a,7,5", "", true},
		{"127,0,0,1,0,0", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			addr, err := ParsePortArg(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected an error, got %v", addr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if addr.String() != tt.wantAddr {
				t.Errorf("got %s, want %s", addr, tt.wantAddr)
			}
		})
	}
}

func Test_OpenActive(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := listener.Addr().(*net.TCPAddr)

	dataChannel, err := OpenActive(context.Background(), addr, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer dataChannel.Close()
	conn, err := listener.Accept()
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
	listener.Close()

	if dataChannel.RemoteAddr().String() != addr.String() {
		t.Errorf("RemoteAddr = %s, want %s", dataChannel.RemoteAddr(), addr)
	}
	if err := dataChannel.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := dataChannel.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	// nothing listens on the port anymore
	if _, err := OpenActive(context.Background(), addr, time.Second); !errors.Is(err, ErrConnect) {
		t.Errorf("expected ErrConnect, got %v", err)
	}
}

// pipeChannel returns a data channel on one end of a pipe and the client end
func pipeChannel(t *testing.T) (*DataChannel, net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
	})
	return &DataChannel{conn: serverConn}, clientConn
}

func Test_Send(t *testing.T) {
	tests := []struct {
		name     string
		t        TransferType
		in       string
		wantWire string
	}{
		{"binary", TypeBinary, "a\nb\r\nc", "a\nb\r\nc"},
		{"ascii", TypeASCII, "a\nb\r\nc", "a\r\nb\r\nc"},
		{"ascii empty", TypeASCII, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataChannel, client := pipeChannel(t)
			received := make(chan string, 1)
			go func() {
				b, _ := io.ReadAll(client)
				received <- string(b)
			}()

			n, err := dataChannel.Send(strings.NewReader(tt.in), tt.t)
			if err != nil {
				t.Fatal(err)
			}
			dataChannel.Close()
			if n != int64(len(tt.in)) {
				t.Errorf("sent %d bytes, want %d", n, len(tt.in))
			}
			if got := <-received; got != tt.wantWire {
				t.Errorf("wire = %q, want %q", got, tt.wantWire)
			}
		})
	}
}

func Test_SendAborted(t *testing.T) {
	dataChannel, client := pipeChannel(t)
	client.Close()

	_, err := dataChannel.Send(strings.NewReader("data"), TypeBinary)
	if !errors.Is(err, errTransferAborted) {
		t.Errorf("expected errTransferAborted, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk error")
}

func Test_SendReadError(t *testing.T) {
	dataChannel, _ := pipeChannel(t)

	_, err := dataChannel.Send(failingReader{}, TypeBinary)
	if err == nil || errors.Is(err, errTransferAborted) {
		t.Errorf("expected a read error, got %v", err)
	}
}

func Test_Receive(t *testing.T) {
	tests := []struct {
		name       string
		t          TransferType
		bufferSize int
		wire       string
		want       string
	}{
		{"binary", TypeBinary, 0, "a\r\nb\r\n", "a\r\nb\r\n"},
		{"binary small buffer", TypeBinary, 2, strings.Repeat("0123456789", 100), strings.Repeat("0123456789", 100)},
		{"ascii", TypeASCII, 0, "a\r\nb\r\n", "a\nb\n"},
		{"ascii CRLF split across reads", TypeASCII, 2, "ab\r\ncd\r\n", "ab\ncd\n"},
		{"ascii trailing CR", TypeASCII, 0, "a\r", "a\r"},
		{"empty", TypeBinary, 0, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataChannel, client := pipeChannel(t)
			go func() {
				_, _ = io.WriteString(client, tt.wire)
				client.Close()
			}()

			var stored bytes.Buffer
			n, err := dataChannel.Receive(&stored, tt.t, tt.bufferSize)
			if err != nil {
				t.Fatal(err)
			}
			if n != int64(len(tt.want)) {
				t.Errorf("received %d bytes, want the %d bytes stored", n, len(tt.want))
			}
			if stored.String() != tt.want {
				t.Errorf("stored %q, want %q", stored.String(), tt.want)
			}
		})
	}
}
