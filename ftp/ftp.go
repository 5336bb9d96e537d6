// Description: FTP package
// This package contains the FTP server implementation: the listener, the per
// connection session with its command table, the active mode data channel and
// the reaper that closes idle sessions.
// File operations go through filesystem.FS so every path stays under the root.

package ftp

import (
	"fmt"
	"strings"
)

// Version is reported by SYST
const Version = "0.1.1"

// StatusCode is a type for FTP status codes
type StatusCode = int

const (
	StatusDataConnectionAlreadyOpen       StatusCode = 125 // Data connection already open; transfer starting
	StatusCommandOK                       StatusCode = 200 // Command okay
	StatusCommandNotImplemented           StatusCode = 202 // Command not implemented, superfluous at this site
	StatusNameSystemType                  StatusCode = 215 // NAME system type
	StatusServiceReadyForNewUser          StatusCode = 220 // Service ready for new user
	StatusServiceClosingControlConnection StatusCode = 221 // Service closing control connection
	StatusClosingDataConnection           StatusCode = 226 // Closing data connection; requested file action successful
	StatusUserLoggedIn                    StatusCode = 230 // User logged in, proceed
	StatusFileActionOK                    StatusCode = 250 // Requested file action okay, completed
	StatusPathnameCreated                 StatusCode = 257 // "PATHNAME" created
	StatusUserNameOK                      StatusCode = 331 // User name okay, need password
	StatusFileActionPending               StatusCode = 350 // Requested file action pending further information
	StatusCantOpenDataConnection          StatusCode = 425 // Can't open data connection
	StatusSyntaxError                     StatusCode = 500 // Syntax error, command unrecognized
	StatusSyntaxErrorInParameters         StatusCode = 501 // Syntax error in parameters or arguments
	StatusSyntaxErrorNotImplemented       StatusCode = 502 // Command not implemented
	StatusBadSequenceOfCommands           StatusCode = 503 // Bad sequence of commands
	StatusCommandNotImplementedForParam   StatusCode = 504 // Command not implemented for that parameter
	StatusNotLoggedIn                     StatusCode = 530 // Not logged in
	StatusFileUnavailable                 StatusCode = 550 // Requested action not taken; File unavailable
	StatusFileNameNotAllowed              StatusCode = 553 // Requested action not taken; file name not allowed
)

// reply formats a single reply line without the line ending
func reply(code StatusCode, format string, a ...any) string {
	return fmt.Sprintf("%d %s", code, fmt.Sprintf(format, a...))
}

type Command = string

const (
	USER Command = "USER" // Send username
	PASS Command = "PASS" // Send password
	QUIT Command = "QUIT" // Disconnect from the server

	PORT Command = "PORT" // Data port the server connects to
	TYPE Command = "TYPE" // Set data transfer type (ASCII/Binary)
	MODE Command = "MODE" // Set data transfer mode, only Stream
	STRU Command = "STRU" // Set file structure, only File

	RETR Command = "RETR" // Retrieve a file
	STOR Command = "STOR" // Store a file
	RNFR Command = "RNFR" // Rename from (start the rename process)
	RNTO Command = "RNTO" // Rename to   (finish the rename process)
	DELE Command = "DELE" // Delete a file
	CWD  Command = "CWD"  // Change working directory
	MKD  Command = "MKD"  // Make directory
	RMD  Command = "RMD"  // Remove directory

	PWD  Command = "PWD"  // Print working directory
	LIST Command = "LIST" // List directory contents
	NLST Command = "NLST" // Get concise list of filenames
	SYST Command = "SYST" // Get operating system type
	NOOP Command = "NOOP" // No operation (often used to keep connections alive)
)

// TransferType is the data representation set by TYPE
type TransferType int

const (
	TypeASCII TransferType = iota
	TypeBinary
)

func (t TransferType) String() string {
	if t == TypeBinary {
		return "binary"
	}
	return "ASCII"
}

// ParseTransferType accepts "A"/"ascii" and "I"/"binary", case insensitive
func ParseTransferType(s string) (TransferType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "ASCII":
		return TypeASCII, nil
	case "I", "BINARY":
		return TypeBinary, nil
	}
	return TypeASCII, fmt.Errorf("unknown transfer type %q, only 'A' (text) or 'I' (binary)", s)
}

// AuthState tracks how far the login got
type AuthState int

const (
	StateUnauthenticated AuthState = iota // connected, no valid USER yet
	StateUserProvided                     // valid USER, waiting for PASS
	StateAuthenticated                    // logged in
)

func (a AuthState) String() string {
	switch a {
	case StateUserProvided:
		return "user-provided"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unauthenticated"
}
