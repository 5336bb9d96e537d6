package sftp

import (
	"errors"
	"fmt"
	"github.com/pkg/sftp"
	"github.com/telebroad/ftpserver/filesystem"
	"io"
	"io/fs"
	"log/slog"
	"os"
)

// fileHandler serves the sftp requests of one client from the local file system.
// Every path goes through the same resolver the FTP server uses.
type fileHandler struct {
	fs     *filesystem.LocalFS
	logger *slog.Logger
}

var (
	_ sftp.FileReader           = &fileHandler{}
	_ sftp.FileWriter           = &fileHandler{}
	_ sftp.FileCmder            = &fileHandler{}
	_ sftp.FileLister           = &fileHandler{}
	_ sftp.PosixRenameFileCmder = &fileHandler{}
	_ sftp.StatVFSFileCmder     = &fileHandler{}
)

// NewHandlers returns the sftp handlers for fs
func NewHandlers(fs *filesystem.LocalFS, logger *slog.Logger) sftp.Handlers {
	h := &fileHandler{fs: fs, logger: logger}
	return sftp.Handlers{
		FileGet:  h,
		FilePut:  h,
		FileCmd:  h,
		FileList: h,
	}
}

func (h *fileHandler) logRequest(request *sftp.Request) {
	h.logger.Debug("sftp request",
		"method", request.Method,
		"path", request.Filepath,
		"target", request.Target,
		"flags", request.Flags,
	)
}

// realPath maps the path of the request to the local file system
func (h *fileHandler) realPath(virtualPath string) (string, error) {
	realPath, err := h.fs.ToReal(h.fs.Root(), virtualPath)
	if errors.Is(err, filesystem.ErrPathEscape) {
		h.logger.Warn("path rejected", "path", virtualPath)
		return "", sftp.ErrSSHFxPermissionDenied
	}
	return realPath, err
}

func (h *fileHandler) Fileread(request *sftp.Request) (io.ReaderAt, error) {
	h.logRequest(request)
	name, err := h.realPath(request.Filepath)
	if err != nil {
		return nil, err
	}
	file, err := h.fs.Open(name)
	if err != nil {
		h.logger.Debug("error opening file", "error", err)
		return nil, err
	}
	return file, nil
}

func (h *fileHandler) Filewrite(request *sftp.Request) (io.WriterAt, error) {
	h.logRequest(request)
	name, err := h.realPath(request.Filepath)
	if err != nil {
		return nil, err
	}
	file, err := h.fs.OpenFile(name, openFlags(request.Pflags()))
	if err != nil {
		h.logger.Debug("error opening file", "error", err)
		return nil, err
	}
	return file, nil
}

// openFlags converts the sftp open flags. Append is left out, the client sends the offsets and WriteAt
// is not allowed on files opened with O_APPEND.
func openFlags(pflags sftp.FileOpenFlags) int {
	flag := os.O_WRONLY
	if pflags.Read {
		flag = os.O_RDWR
	}
	if pflags.Creat {
		flag |= os.O_CREATE
	}
	if pflags.Trunc {
		flag |= os.O_TRUNC
	}
	if pflags.Excl {
		flag |= os.O_EXCL
	}
	return flag
}

func (h *fileHandler) Filecmd(request *sftp.Request) error {
	h.logRequest(request)
	name, err := h.realPath(request.Filepath)
	if err != nil {
		return err
	}

	switch request.Method {
	case "Setstat":
		if !request.AttrFlags().Permissions {
			return nil
		}
		return h.fs.SetStat(name, request.Attributes().FileMode())

	case "Rename":
		// SFTP-v2: "It is an error if there already exists a file with the name specified by newpath."
		target, err := h.realPath(request.Target)
		if err != nil {
			return err
		}
		if _, err := h.fs.Lstat(target); err == nil {
			return fs.ErrExist
		}
		return h.fs.Rename(name, target)

	case "Rmdir":
		if err := h.fs.CheckDir(name); err != nil {
			return err
		}
		return h.fs.Remove(name)

	case "Remove":
		return h.fs.Remove(name)

	case "Mkdir":
		return h.fs.MakeDir(name)

	case "Link", "Symlink":
		// links could point outside the root
		return sftp.ErrSSHFxOpUnsupported
	}

	return sftp.ErrSSHFxOpUnsupported
}

// PosixRename renames and replaces the target if it exists
func (h *fileHandler) PosixRename(request *sftp.Request) error {
	h.logRequest(request)
	name, err := h.realPath(request.Filepath)
	if err != nil {
		return err
	}
	target, err := h.realPath(request.Target)
	if err != nil {
		return err
	}
	return h.fs.Rename(name, target)
}

func (h *fileHandler) StatVFS(request *sftp.Request) (*sftp.StatVFS, error) {
	h.logRequest(request)
	name, err := h.realPath(request.Filepath)
	if err != nil {
		return nil, err
	}
	return h.fs.StatFS(name)
}

type listerAt []os.FileInfo

// ListAt Modeled after strings.Reader's ReadAt() implementation
func (f listerAt) ListAt(ls []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(f)) {
		return 0, io.EOF
	}
	n := copy(ls, f[offset:])
	if n < len(ls) {
		return n, io.EOF
	}
	return n, nil
}

func (h *fileHandler) Filelist(request *sftp.Request) (sftp.ListerAt, error) {
	h.logRequest(request)
	name, err := h.realPath(request.Filepath)
	if err != nil {
		return nil, err
	}

	switch request.Method {
	case "List":
		entries, err := h.fs.Dir(name)
		if err != nil {
			return nil, fmt.Errorf("fileList error: %w", err)
		}
		return listerAt(entries), nil
	case "Stat":
		entry, err := h.fs.Stat(name)
		if err != nil {
			return nil, err
		}
		return listerAt{entry}, nil
	case "Lstat":
		entry, err := h.fs.Lstat(name)
		if err != nil {
			return nil, err
		}
		return listerAt{entry}, nil
	}

	return nil, sftp.ErrSSHFxOpUnsupported
}
