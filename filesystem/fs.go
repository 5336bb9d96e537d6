package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FS is the interface the FTP and SFTP servers use to touch the disk.
// All names are real paths that were produced by the embedded Resolver, so an
// implementation can assume they are already confined to the root directory.
// ToVirtual and ToReal translate between the client view and real paths
// CheckDir checks that the given directory exists
// Open opens a file for reading
// Create creates or truncates a file for writing
// OpenFile opens a file with the given os flags
// Remove removes a file or an empty directory
// MakeDir creates a directory
// Rename renames or moves a file or directory
// Stat and Lstat return file info
// SetStat changes the file permissions
// Dir returns the entries of a directory
// List returns "ls -l" style lines for a directory
// Names returns the visible file names of a directory
type FS interface {
	Root() string
	ToVirtual(realPath string) string
	ToReal(workingDir, arg string) (string, error)
	IsRoot(realPath string) bool

	// CheckDir checks if the given directory exists
	CheckDir(dirName string) error
	// Open opens the file for reading
	Open(fileName string) (*os.File, error)
	// Create creates a new file, truncating it if it exists
	Create(fileName string) (*os.File, error)
	// OpenFile opens the file with the given os flags
	OpenFile(fileName string, flag int) (*os.File, error)
	// Remove removes the file or the empty directory
	Remove(fileName string) error
	// MakeDir creates a new directory with the given name
	MakeDir(dirName string) error
	// Rename renames the file/folder or moves it to a different directory
	Rename(original string, target string) error
	// Stat returns the file info
	Stat(fileName string) (fs.FileInfo, error)
	// Lstat returns the file info without following the link
	Lstat(fileName string) (fs.FileInfo, error)
	// SetStat changes the file permissions
	SetStat(fileName string, mode os.FileMode) error
	// Dir returns the entries of the directory sorted by name
	Dir(dirName string) ([]os.FileInfo, error)
	// List returns one "ls -l" style line per entry
	List(dirName string) ([]string, error)
	// Names returns the names of the entries that don't start with a dot
	Names(dirName string) ([]string, error)
}

// Ensure that LocalFS implements the FS interface
var _ FS = &LocalFS{}

// LocalFS is a local file system rooted at a directory
type LocalFS struct {
	*Resolver
}

// NewLocalFS returns a LocalFS serving localDir as the virtual root "/".
func NewLocalFS(localDir string) (*LocalFS, error) {
	resolver, err := NewResolver(localDir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolver.Root())
	if err != nil {
		return nil, fmt.Errorf("error checking root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", resolver.Root())
	}
	return &LocalFS{Resolver: resolver}, nil
}

// CheckDir checks if the given directory exists
func (FS *LocalFS) CheckDir(dirName string) error {
	info, err := os.Stat(dirName)
	if err != nil {
		return fmt.Errorf("error checking directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("error checking directory: %s: %w", FS.ToVirtual(dirName), fs.ErrNotExist)
	}
	return nil
}

// Open opens the file for reading
func (FS *LocalFS) Open(fileName string) (*os.File, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	return file, nil
}

// Create creates a new file, truncating it if it exists
func (FS *LocalFS) Create(fileName string) (*os.File, error) {
	return FS.OpenFile(fileName, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
}

// OpenFile opens the file with the given os flags
func (FS *LocalFS) OpenFile(fileName string, flag int) (*os.File, error) {
	file, err := os.OpenFile(fileName, flag, 0666)
	if err != nil {
		return nil, fmt.Errorf("creating file error: %w", err)
	}
	return file, nil
}

// Remove removes the file or the empty directory. The root can't be removed.
func (FS *LocalFS) Remove(fileName string) error {
	if FS.IsRoot(fileName) {
		return fmt.Errorf("error removing root directory: %w", fs.ErrPermission)
	}
	if _, err := os.Lstat(fileName); err != nil {
		return fmt.Errorf("error removing file: %w", err)
	}
	if err := os.Remove(fileName); err != nil {
		return fmt.Errorf("error removing file: %w", err)
	}
	return nil
}

// MakeDir creates a new directory with the given name
func (FS *LocalFS) MakeDir(dirName string) error {
	if err := os.Mkdir(dirName, 0777); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	return nil
}

// Rename renames the file or moves it to a different directory
func (FS *LocalFS) Rename(fileName, newName string) error {
	if FS.IsRoot(fileName) || FS.IsRoot(newName) {
		return fmt.Errorf("error renaming root directory: %w", fs.ErrPermission)
	}
	if err := os.Rename(fileName, newName); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	return nil
}

// Stat returns the file info
func (FS *LocalFS) Stat(fileName string) (fs.FileInfo, error) {
	info, err := os.Stat(fileName)
	if err != nil {
		return nil, fmt.Errorf("error getting file info: %w", err)
	}
	return info, nil
}

// Lstat returns the file info without following the link
func (FS *LocalFS) Lstat(fileName string) (fs.FileInfo, error) {
	info, err := os.Lstat(fileName)
	if err != nil {
		return nil, fmt.Errorf("error getting file info: %w", err)
	}
	return info, nil
}

// SetStat changes the file permissions
func (FS *LocalFS) SetStat(fileName string, mode os.FileMode) error {
	if mode == 0 {
		return fmt.Errorf("invalid permissions: %w", fs.ErrInvalid)
	}
	if err := os.Chmod(fileName, mode.Perm()); err != nil {
		return fmt.Errorf("error changing file permissions: %w", err)
	}
	return nil
}

// Dir returns the entries of the directory sorted by name
func (FS *LocalFS) Dir(dirName string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(dirName)
	if err != nil {
		return nil, fmt.Errorf("error reading directory: %w", err)
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

// List returns one "ls -l" style line per entry
func (FS *LocalFS) List(dirName string) ([]string, error) {
	infos, err := FS.Dir(dirName)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(infos))
	for i, info := range infos {
		lines[i] = ListLine(info)
	}
	return lines, nil
}

// Names returns the names of the entries that don't start with a dot
func (FS *LocalFS) Names(dirName string) ([]string, error) {
	infos, err := FS.Dir(dirName)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasPrefix(info.Name(), ".") {
			continue
		}
		names = append(names, info.Name())
	}
	return names, nil
}

// ListLine formats info the way "ls -l" does:
// permissions, number of links, owner, group, size, modification time, name
func ListLine(info fs.FileInfo) string {
	modTime := info.ModTime()
	stamp := modTime.Format("Jan _2 15:04")
	if time.Since(modTime) > 180*24*time.Hour || modTime.After(time.Now().Add(time.Hour)) {
		stamp = modTime.Format("Jan _2  2006")
	}
	return fmt.Sprintf("%s 1 %s %s %12d %s %s",
		info.Mode().String(), "owner", "group", info.Size(), stamp, filepath.Base(info.Name()))
}
