package main

import (
	"fmt"
	"github.com/lmittmann/tint"
	"github.com/telebroad/ftpserver/ftp"
	"github.com/telebroad/ftpserver/users"
	"io"
	"log/slog"
	"os"
	"strconv"
)

const (
	defaultRoot = "." // the working directory of the process
	defaultUser = "fluffyjack"
	defaultPass = "password"
)

// Environment is the environment of the server
type Environment struct {
	Host            string
	Port            int
	Root            string
	DefaultUser     string
	DefaultPass     string
	DefaultPassHash string // bcrypt hash, used instead of DefaultPass when set
	DefaultMode     ftp.TransferType
	SftpAddr        string
	KeyFile         string
}

// GetEnv returns a new Environment with the environment variables
func GetEnv(logger *slog.Logger) (*Environment, error) {
	env := &Environment{
		Host:            os.Getenv("FTP_SERVER_HOST"),
		Root:            os.Getenv("FTP_SERVER_ROOT"),
		DefaultUser:     os.Getenv("FTP_DEFAULT_USER"),
		DefaultPass:     os.Getenv("FTP_DEFAULT_PASS"),
		DefaultPassHash: os.Getenv("FTP_DEFAULT_PASS_HASH"),
		SftpAddr:        os.Getenv("SFTP_SERVER_ADDR"),
		KeyFile:         os.Getenv("KEY_FILE"),
		Port:            ftp.DefaultConfig().Port,
	}
	if env.Host == "" {
		env.Host = ftp.DefaultConfig().Host
	}
	if env.Root == "" {
		env.Root = defaultRoot
	}
	if env.DefaultUser == "" {
		env.DefaultUser = defaultUser
	}
	if env.DefaultPass == "" {
		env.DefaultPass = defaultPass
	}

	if port := os.Getenv("FTP_SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p < 0 || p > 65535 {
			return nil, fmt.Errorf("invalid FTP_SERVER_PORT %q", port)
		}
		env.Port = p
	}

	if mode := os.Getenv("FTP_DEFAULT_MODE"); mode != "" {
		t, err := ftp.ParseTransferType(mode)
		if err != nil {
			return nil, fmt.Errorf("invalid FTP_DEFAULT_MODE: %w", err)
		}
		env.DefaultMode = t
	}

	logger.Debug("FTP_SERVER_HOST is", "HOST", env.Host)
	logger.Debug("FTP_SERVER_PORT is", "PORT", env.Port)
	logger.Debug("FTP_SERVER_ROOT is", "ROOT", env.Root)
	logger.Debug("FTP_DEFAULT_USER is", "username", env.DefaultUser)
	logger.Debug("FTP_DEFAULT_MODE is", "mode", env.DefaultMode)
	logger.Debug("SFTP_SERVER_ADDR is", "ADDR", env.SftpAddr)
	logger.Debug("KEY_FILE is ", "file", env.KeyFile)

	return env, nil
}

// GetUsers returns the user allowed to log in
func GetUsers(env *Environment, logger *slog.Logger) (users.Verifier, error) {
	if env.DefaultPassHash != "" {
		logger.Debug("using FTP_DEFAULT_PASS_HASH", "username", env.DefaultUser)
		return users.NewStaticUserHash(env.DefaultUser, env.DefaultPassHash)
	}
	return users.NewStaticUser(env.DefaultUser, env.DefaultPass)
}

func setupLogger(w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	AddSource := false
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		logLevel = slog.LevelDebug
		AddSource = true
	case "INFO":
		logLevel = slog.LevelInfo
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	}

	handler := tint.NewHandler(w, &tint.Options{
		AddSource: AddSource,
		Level:     logLevel,
	})

	logger := slog.New(handler).With("app", "ftp-server")
	logger.Debug("Logger initialized", "level", logLevel)
	return logger
}
