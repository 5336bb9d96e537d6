package ftp

import (
	"errors"
	"github.com/telebroad/ftpserver/filesystem"
	"github.com/telebroad/ftpserver/tools"
	"io/fs"
)

var (
	// ErrServerClosed is returned by Serve after Close
	ErrServerClosed = errors.New("ftp: server closed")
	// ErrConnect is wrapped by OpenActive when the client's data port can't be reached
	ErrConnect = errors.New("can't open data connection")
	// ErrNoDataConnection is returned by transfer commands that were not preceded by PORT
	ErrNoDataConnection = errors.New("no data connection, send PORT first")

	errTransferAborted = errors.New("data connection closed, transfer aborted")
)

// errorReply turns the error of a command into the reply sent to the client
func errorReply(err error) string {
	switch {
	case errors.Is(err, filesystem.ErrPathEscape), errors.Is(err, fs.ErrPermission):
		return reply(StatusFileNameNotAllowed, "Permission denied")
	case errors.Is(err, fs.ErrNotExist):
		return reply(StatusFileNameNotAllowed, "File doesn't exist")
	case errors.Is(err, ErrConnect), errors.Is(err, ErrNoDataConnection):
		return reply(StatusCantOpenDataConnection, "Can't open data connection")
	}
	return reply(StatusSyntaxError, "Server Error: %s", tools.Printable(err.Error()))
}
