package filesystem

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a path would resolve outside the root directory.
var ErrPathEscape = errors.New("access denied: path is outside the root directory")

// Resolver translates between the client's virtual view of the file system,
// where the root directory is "/", and real paths on the server.
// Every real path it hands out is lexically inside the root directory.
type Resolver struct {
	root string
}

// NewResolver returns a Resolver confined to root. root is made absolute.
func NewResolver(root string) (*Resolver, error) {
	if root == "" {
		return nil, errors.New("root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("error resolving root directory: %w", err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the real root directory.
func (r *Resolver) Root() string {
	return r.root
}

// ToVirtual strips the root from realPath and returns the client visible path.
// The root itself, and anything not under it, is reported as "/".
func (r *Resolver) ToVirtual(realPath string) string {
	segments, err := r.segments(realPath)
	if err != nil || len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}

// ToReal resolves arg against workingDir (a real path) and returns the real path.
// An arg starting with "/" is taken from the root. "." and empty segments are
// dropped and ".." climbs one level; climbing above the root fails with ErrPathEscape.
func (r *Resolver) ToReal(workingDir, arg string) (string, error) {
	arg = filepath.ToSlash(arg)

	var segments []string
	if !strings.HasPrefix(arg, "/") {
		base, err := r.segments(workingDir)
		if err != nil {
			return "", err
		}
		segments = base
	}

	for _, segment := range strings.Split(arg, "/") {
		switch segment {
		case "", ".":
		case "..":
			if len(segments) == 0 {
				return "", fmt.Errorf("%w: %q", ErrPathEscape, arg)
			}
			segments = segments[:len(segments)-1]
		default:
			segments = append(segments, segment)
		}
	}

	return filepath.Join(append([]string{r.root}, segments...)...), nil
}

// IsRoot reports whether realPath is the root directory itself.
func (r *Resolver) IsRoot(realPath string) bool {
	return filepath.Clean(realPath) == r.root
}

// segments returns the path elements of realPath below the root.
func (r *Resolver) segments(realPath string) ([]string, error) {
	rel, err := filepath.Rel(r.root, filepath.Clean(realPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPathEscape, realPath)
	}
	if rel == "." {
		return nil, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrPathEscape, realPath)
	}

	var segments []string
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		if segment != "" && segment != "." {
			segments = append(segments, segment)
		}
	}
	return segments, nil
}
