//go:build !linux

package filesystem

import (
	"errors"
	"fmt"
	"github.com/pkg/sftp"
	"runtime"
)

// StatFS returns the file system status of the file system containing the file
func (FS *LocalFS) StatFS(path string) (*sftp.StatVFS, error) {
	return nil, fmt.Errorf("%w on %s", errors.ErrUnsupported, runtime.GOOS)
}
