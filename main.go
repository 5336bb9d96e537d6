// Description: This is the main file of the ftp server
// The ftp server is configured with environment variables, the flags override them.
// When SFTP_SERVER_ADDR is set the same root is also served over SFTP.

package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/spf13/cobra"
	"github.com/telebroad/ftpserver/filesystem"
	"github.com/telebroad/ftpserver/ftp"
	"github.com/telebroad/ftpserver/sftp"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		host string
		port int
		root string
	)

	cmd := &cobra.Command{
		Use:           "ftpserver",
		Short:         "Active mode FTP server",
		Version:       ftp.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(os.Stdout)
			slog.SetDefault(logger)

			env, err := GetEnv(logger)
			if err != nil {
				logger.Error("Error getting environment", "error", err)
				return err
			}
			if cmd.Flags().Changed("host") {
				env.Host = host
			}
			if cmd.Flags().Changed("port") {
				env.Port = port
			}
			if cmd.Flags().Changed("root") {
				env.Root = root
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = run(ctx, env, logger)
			if err != nil {
				logger.Error("Server stopped", "error", err)
			}
			return err
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "address to listen on (FTP_SERVER_HOST)")
	cmd.Flags().IntVar(&port, "port", 21, "control port (FTP_SERVER_PORT)")
	cmd.Flags().StringVar(&root, "root", defaultRoot, "directory served as / (FTP_SERVER_ROOT)")
	return cmd
}

// run serves until ctx is done
func run(ctx context.Context, env *Environment, logger *slog.Logger) error {
	u, err := GetUsers(env, logger)
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}

	fs, err := filesystem.NewLocalFS(env.Root)
	if err != nil {
		return fmt.Errorf("error opening root: %w", err)
	}

	cfg := ftp.DefaultConfig()
	cfg.Host = env.Host
	cfg.Port = env.Port
	cfg.DefaultType = env.DefaultMode

	ftpServer, err := ftp.NewServer(cfg, fs, u)
	if err != nil {
		return err
	}
	ftpServer.SetLogger(logger)

	served := make(chan error, 1)
	go func() {
		served <- ftpServer.ListenAndServe()
	}()
	logger.Info("FTP server started", "addr", cfg.Addr(), "root", fs.Root())

	var sftpServer *sftp.Server
	if env.SftpAddr != "" {
		sftpServer = sftp.NewSFTPServer(env.SftpAddr, fs, u)
		sftpServer.SetLogger(logger)
		if env.KeyFile != "" {
			if err := sftpServer.SetPrivateKeyFile(env.KeyFile); err != nil {
				_ = ftpServer.Close(err)
				return err
			}
		}
		if err := sftpServer.TryListenAndServe(time.Second); err != nil {
			_ = ftpServer.Close(err)
			return fmt.Errorf("error starting sftp server: %w", err)
		}
		logger.Info("SFTP server started", "addr", env.SftpAddr)
	}

	select {
	case <-ctx.Done():
		err = nil
	case err = <-served:
	}

	// graceful shutdown all servers
	if closeErr := ftpServer.Close(errors.New("ftp server closed by signal")); closeErr != nil {
		logger.Warn("Error closing ftp server", "error", closeErr)
	}
	if sftpServer != nil {
		if closeErr := sftpServer.Close(); closeErr != nil {
			logger.Warn("Error closing sftp server", "error", closeErr)
		}
	}
	if errors.Is(err, ftp.ErrServerClosed) {
		return nil
	}
	return err
}
