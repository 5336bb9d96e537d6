package ftp

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// command is an entry of the command table.
// pathArg commands get their argument resolved to a real path under the root before the handler runs.
type command struct {
	handler func(s *Session, arg string) (string, error)
	pathArg bool
}

// commandTable maps FTP verbs to their handlers.
var commandTable = map[Command]command{
	USER: {handler: (*Session).UserCommand},                           // USER is used to specify the username
	PASS: {handler: (*Session).PassCommand},                           // PASS is used to specify the password
	QUIT: {handler: (*Session).QuitCommand},                           // QUIT is used to terminate the connection
	PORT: {handler: (*Session).ActiveModeCommand},                     // PORT is used to specify an address and port to which the server should connect
	TYPE: {handler: (*Session).TypeCommand},                           // TYPE is used to specify the type of file being transferred
	MODE: {handler: (*Session).ModeCommand},                           // MODE is used to specify the transfer mode, only stream
	STRU: {handler: (*Session).StruCommand},                           // STRU is used to specify the file structure, only file
	NOOP: {handler: (*Session).NoopCommand},                           // NOOP is used to keep the connection alive
	SYST: {handler: (*Session).SystemCommand},                         // SYST is used to get the system type
	LIST: {handler: (*Session).ListCommand},                           // LIST is used to list a directory like $ls -l
	NLST: {handler: (*Session).NameListCommand},                       // NLST is used to list the file names of a directory
	PWD:  {handler: (*Session).PrintWorkingDirectoryCommand},          // PWD is used to print the current working directory
	CWD:  {handler: (*Session).ChangeDirectoryCommand, pathArg: true}, // CWD is used to change the working directory
	DELE: {handler: (*Session).RemoveCommand, pathArg: true},          // DELE is used to delete a file
	RMD:  {handler: (*Session).RemoveDirectoryCommand, pathArg: true}, // RMD is used to delete a directory or a file
	MKD:  {handler: (*Session).MakeDirectoryCommand, pathArg: true},   // MKD is used to create a directory
	RNFR: {handler: (*Session).RenameFromCommand, pathArg: true},      // RNFR is used to specify the file to be renamed
	RNTO: {handler: (*Session).RenameToCommand, pathArg: true},        // RNTO is used to specify the new name for the file
	RETR: {handler: (*Session).RetrieveCommand, pathArg: true},        // RETR is used to retrieve a file from the server
	STOR: {handler: (*Session).SaveCommand, pathArg: true},            // STOR is used to store a file on the server
}

// UserCommand handles the USER command from the client.
func (s *Session) UserCommand(arg string) (string, error) {
	if !s.server.users.ValidUser(arg) {
		s.username = ""
		s.authState = StateUnauthenticated
		s.logger.Info("Rejected username", "username", arg)
		return reply(StatusNotLoggedIn, "Username is incorrect"), nil
	}
	s.username = arg
	s.authState = StateUserProvided
	return reply(StatusUserNameOK, "Username is correct, still need a password"), nil
}

// PassCommand handles the PASS command from the client.
// The password is checked against the username given with USER.
func (s *Session) PassCommand(arg string) (string, error) {
	if s.authState == StateUnauthenticated {
		return reply(StatusBadSequenceOfCommands, "Login with USER first"), nil
	}
	if !s.server.users.Verify(s.username, arg) {
		s.logger.Info("Rejected password", "username", s.username)
		return reply(StatusNotLoggedIn, "Password is incorrect"), nil
	}
	s.authState = StateAuthenticated
	s.logger.Info("User logged in", "username", s.username)
	return reply(StatusUserLoggedIn, "Logged in successfully"), nil
}

// QuitCommand handles the QUIT command, the connection is closed after the reply.
func (s *Session) QuitCommand(string) (string, error) {
	return s.logout(), nil
}

// ActiveModeCommand handles the PORT command from the client.
// Any previous data connection is closed before connecting to the new address.
func (s *Session) ActiveModeCommand(arg string) (string, error) {
	addr, err := ParsePortArg(arg)
	if err != nil {
		s.logger.Debug("invalid PORT argument", "error", err)
		return reply(StatusSyntaxErrorInParameters, "Syntax error in parameters or arguments"), nil
	}

	s.closeDataChannel()
	dataChannel, err := OpenActive(s.ctx, addr, s.server.config.DialTimeout)
	if err != nil {
		s.logger.Warn("error connecting to data port", "addr", addr.String(), "error", err)
		return "", err
	}
	s.setDataChannel(dataChannel)
	s.logger.Debug("data connection established", "addr", addr.String())
	return reply(StatusCommandOK, "Passive connection established (%d)", addr.Port), nil
}

// TypeCommand handles the TYPE command from the client.
// The two types are ASCII (A) and binary (I).
func (s *Session) TypeCommand(arg string) (string, error) {
	code, _, _ := strings.Cut(arg, " ")
	switch strings.ToUpper(code) {
	case "A":
		s.transferType = TypeASCII
		return reply(StatusCommandOK, "Type set to ASCII"), nil
	case "I":
		s.transferType = TypeBinary
		return reply(StatusCommandOK, "Type set to binary"), nil
	}
	return reply(StatusCommandNotImplementedForParam, "Type not supported"), nil
}

// ModeCommand handles the MODE command from the client.
func (s *Session) ModeCommand(string) (string, error) {
	return reply(StatusCommandNotImplemented, "Only accepts stream"), nil
}

// StruCommand handles the STRU command from the client.
func (s *Session) StruCommand(string) (string, error) {
	return reply(StatusCommandNotImplemented, "Only accepts file"), nil
}

// NoopCommand handles the NOOP command from the client.
func (s *Session) NoopCommand(string) (string, error) {
	return reply(StatusCommandOK, ""), nil
}

// SystemCommand returns the server name and version.
func (s *Session) SystemCommand(string) (string, error) {
	return reply(StatusNameSystemType, "%s v%s", s.server.config.ServerName, Version), nil
}

// PrintWorkingDirectoryCommand handles the PWD command from the client.
func (s *Session) PrintWorkingDirectoryCommand(string) (string, error) {
	return reply(StatusPathnameCreated, "%q is the current directory", s.fs().ToVirtual(s.workingDir)), nil
}

// ChangeDirectoryCommand handles the CWD command from the client.
// On failure the working directory is left as it was.
func (s *Session) ChangeDirectoryCommand(dir string) (string, error) {
	if err := s.fs().CheckDir(dir); err != nil {
		s.logger.Debug("CWD failed", "error", err)
		return reply(StatusFileUnavailable, "Directory not found"), nil
	}
	s.workingDir = dir
	return reply(StatusFileActionOK, "Directory changed to %s", s.fs().ToVirtual(dir)), nil
}

// RemoveCommand handles the DELE command, it shares RMD's logic.
func (s *Session) RemoveCommand(fileName string) (string, error) {
	return s.RemoveDirectoryCommand(fileName)
}

// RemoveDirectoryCommand handles the RMD command, it removes a file or an empty directory.
func (s *Session) RemoveDirectoryCommand(fileName string) (string, error) {
	if err := s.fs().Remove(fileName); err != nil {
		return "", err
	}
	return reply(StatusCommandOK, "OK, deleted %s", s.fs().ToVirtual(fileName)), nil
}

// MakeDirectoryCommand handles the MKD command from the client.
func (s *Session) MakeDirectoryCommand(dirName string) (string, error) {
	if err := s.fs().MakeDir(dirName); err != nil {
		return "", err
	}
	return reply(StatusPathnameCreated, "%s created", s.fs().ToVirtual(dirName)), nil
}

// RenameFromCommand handles the RNFR command, the file is remembered until RNTO.
func (s *Session) RenameFromCommand(fileName string) (string, error) {
	if s.fs().IsRoot(fileName) {
		return "", fmt.Errorf("error renaming root directory: %w", fs.ErrPermission)
	}
	if _, err := s.fs().Lstat(fileName); err != nil {
		return "", err
	}
	s.renamingFile = fileName
	return reply(StatusFileActionPending, "Awaiting RNTO for file"), nil
}

// RenameToCommand handles the RNTO command. The pending RNFR is consumed
// whether the rename works or not.
func (s *Session) RenameToCommand(newName string) (string, error) {
	from := s.renamingFile
	s.renamingFile = ""
	if from == "" {
		return reply(StatusBadSequenceOfCommands, "Bad sequence of commands, send RNFR first"), nil
	}
	if err := s.fs().Rename(from, newName); err != nil {
		return "", err
	}
	return reply(StatusFileActionOK, "File renamed to %s", s.fs().ToVirtual(newName)), nil
}

// RetrieveCommand handles the RETR command, it sends the file over the data connection.
func (s *Session) RetrieveCommand(fileName string) (string, error) {
	dataChannel := s.dataChannel()
	if dataChannel == nil {
		return "", ErrNoDataConnection
	}
	defer s.closeDataChannel()

	file, err := s.fs().Open(fileName)
	if err != nil {
		return "", err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("error getting file info: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", s.fs().ToVirtual(fileName))
	}

	s.reply(reply(StatusDataConnectionAlreadyOpen, "Data transfer starting"))
	n, err := dataChannel.Send(file, s.transferType)
	if err != nil {
		if errors.Is(err, errTransferAborted) {
			s.logger.Warn("RETR aborted by the client", "file", s.fs().ToVirtual(fileName), "sent", n, "error", err)
			return s.logout(), nil
		}
		return "", err
	}
	s.logger.Info("RETR", "file", s.fs().ToVirtual(fileName), "bytes", n)
	return reply(StatusClosingDataConnection, "Closing data connection, sent %d bytes", n), nil
}

// SaveCommand handles the STOR command, it reads the data connection until the
// client closes it and stores everything in the file.
func (s *Session) SaveCommand(fileName string) (string, error) {
	dataChannel := s.dataChannel()
	if dataChannel == nil {
		return "", ErrNoDataConnection
	}
	defer s.closeDataChannel()

	file, err := s.fs().Create(fileName)
	if err != nil {
		return "", err
	}

	s.reply(reply(StatusDataConnectionAlreadyOpen, "Data transfer starting"))
	n, err := dataChannel.Receive(file, s.transferType, s.server.config.BufferSize)
	closeErr := file.Close()
	if err != nil {
		return "", err
	}
	if closeErr != nil {
		return "", fmt.Errorf("closing and saving file error: %w", closeErr)
	}
	s.logger.Info("STOR", "file", s.fs().ToVirtual(fileName), "bytes", n)
	return reply(StatusClosingDataConnection, "Closing data connection, received %d bytes", n), nil
}

// ListCommand handles the LIST command, it sends "ls -l" style lines over the data connection.
// Without a path argument the working directory is listed.
func (s *Session) ListCommand(arg string) (string, error) {
	dataChannel := s.dataChannel()
	if dataChannel == nil {
		return "", ErrNoDataConnection
	}
	defer s.closeDataChannel()

	dir, err := s.listDir(arg)
	if err != nil {
		return "", err
	}
	lines, err := s.fs().List(dir)
	if err != nil {
		return "", err
	}

	s.reply(reply(StatusDataConnectionAlreadyOpen, "Opening ASCII mode data connection for file list"))
	var listing string
	if len(lines) > 0 {
		listing = strings.Join(lines, "\r\n") + "\r\n"
	}
	if _, err := dataChannel.Send(strings.NewReader(listing), TypeBinary); err != nil {
		if errors.Is(err, errTransferAborted) {
			s.logger.Warn("LIST aborted by the client", "error", err)
			return s.logout(), nil
		}
		return "", err
	}
	return reply(StatusClosingDataConnection, "Transfer complete"), nil
}

// NameListCommand handles the NLST command. The names are sent space separated
// on the control connection, an empty directory gets a 550 reply instead of an empty line.
func (s *Session) NameListCommand(arg string) (string, error) {
	dir, err := s.listDir(arg)
	if err != nil {
		return "", err
	}
	names, err := s.fs().Names(dir)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return reply(StatusFileUnavailable, "No files found"), nil
	}
	return strings.Join(names, " "), nil
}

// listDir returns the directory LIST and NLST work on, options like "-la" are ignored
func (s *Session) listDir(arg string) (string, error) {
	var target []string
	for _, field := range strings.Fields(arg) {
		if !strings.HasPrefix(field, "-") {
			target = append(target, field)
		}
	}
	if len(target) == 0 {
		return s.workingDir, nil
	}
	return s.fs().ToReal(s.workingDir, strings.Join(target, " "))
}
