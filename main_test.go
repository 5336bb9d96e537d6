package main

import (
	"bytes"
	"context"
	"github.com/telebroad/ftpserver/ftp"
	"golang.org/x/crypto/bcrypt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_GetEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, key := range []string{"FTP_SERVER_HOST", "FTP_SERVER_PORT", "FTP_SERVER_ROOT", "FTP_DEFAULT_USER", "FTP_DEFAULT_PASS", "FTP_DEFAULT_MODE"} {
			t.Setenv(key, "")
		}
		env, err := GetEnv(discardLogger())
		if err != nil {
			t.Fatal(err)
		}
		if env.Host != "127.0.0.1" || env.Port != 21 || env.Root != "." {
			t.Errorf("unexpected defaults %+v", env)
		}
		if env.DefaultUser != "fluffyjack" || env.DefaultPass != "password" {
			t.Errorf("unexpected default user %+v", env)
		}
		if env.DefaultMode != ftp.TypeASCII {
			t.Errorf("default mode = %v, want ASCII", env.DefaultMode)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("FTP_SERVER_HOST", "127.0.0.1")
		t.Setenv("FTP_SERVER_PORT", "2121")
		t.Setenv("FTP_SERVER_ROOT", "/srv/ftp")
		t.Setenv("FTP_DEFAULT_MODE", "binary")
		env, err := GetEnv(discardLogger())
		if err != nil {
			t.Fatal(err)
		}
		if env.Host != "127.0.0.1" || env.Port != 2121 || env.Root != "/srv/ftp" || env.DefaultMode != ftp.TypeBinary {
			t.Errorf("unexpected environment %+v", env)
		}
	})

	tests := []struct {
		key   string
		value string
	}{
		{"FTP_SERVER_PORT", "ftp"},
		{"FTP_SERVER_PORT", "70000"},
		{"FTP_DEFAULT_MODE", "ebcdic"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := GetEnv(discardLogger()); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func Test_GetUsers(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		env      Environment
		password string
		want     bool
	}{
		{"plain password", Environment{DefaultUser: "fluffyjack", DefaultPass: "password"}, "password", true},
		{"wrong password", Environment{DefaultUser: "fluffyjack", DefaultPass: "password"}, "nope", false},
		{"hash wins", Environment{DefaultUser: "fluffyjack", DefaultPass: "password", DefaultPassHash: string(hash)}, "hashed", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := GetUsers(&tt.env, discardLogger())
			if err != nil {
				t.Fatal(err)
			}
			if got := u.Verify("fluffyjack", tt.password); got != tt.want {
				t.Errorf("Verify = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_RunStopsOnCancel(t *testing.T) {
	env := &Environment{
		Host:        "127.0.0.1",
		Port:        0,
		Root:        t.TempDir(),
		DefaultUser: "fluffyjack",
		DefaultPass: "password",
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, env, discardLogger())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}

func Test_RunMissingRoot(t *testing.T) {
	env := &Environment{
		Host:        "127.0.0.1",
		Root:        filepath.Join(t.TempDir(), "missing"),
		DefaultUser: "fluffyjack",
		DefaultPass: "password",
	}
	if err := run(context.Background(), env, discardLogger()); err == nil {
		t.Error("expected an error for a missing root")
	}
}

func Test_VersionFlag(t *testing.T) {
	for _, arg := range []string{"-v", "--version"} {
		t.Run(arg, func(t *testing.T) {
			cmd := newRootCommand()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetArgs([]string{arg})
			if err := cmd.Execute(); err != nil {
				t.Fatal(err)
			}
			if got := strings.TrimSpace(out.String()); got != ftp.Version {
				t.Errorf("version = %q, want %q", got, ftp.Version)
			}
		})
	}
}
