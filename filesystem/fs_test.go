package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func newTestFS(t *testing.T) *LocalFS {
	t.Helper()
	localFS, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return localFS
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(name, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func Test_NewLocalFS(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	writeFile(t, file, "x")

	if _, err := NewLocalFS(file); err == nil {
		t.Error("expected an error for a root that is a file")
	}
	if _, err := NewLocalFS(filepath.Join(dir, "missing")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not exist error, got %v", err)
	}
}

func Test_Remove(t *testing.T) {
	localFS := newTestFS(t)
	root := localFS.Root()

	file := filepath.Join(root, "file.txt")
	writeFile(t, file, "data")
	dir := filepath.Join(root, "dir")
	if err := localFS.MakeDir(dir); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"file", file, nil},
		{"empty dir", dir, nil},
		{"missing", filepath.Join(root, "missing"), fs.ErrNotExist},
		{"root", root, fs.ErrPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := localFS.Remove(tt.path)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Remove(%q) unexpected error: %v", tt.path, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Remove(%q) error = %v, want %v", tt.path, err, tt.wantErr)
			}
		})
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root was removed: %v", err)
	}
}

func Test_CheckDir(t *testing.T) {
	localFS := newTestFS(t)
	root := localFS.Root()
	file := filepath.Join(root, "file.txt")
	writeFile(t, file, "data")

	if err := localFS.CheckDir(root); err != nil {
		t.Errorf("CheckDir(root) unexpected error: %v", err)
	}
	if err := localFS.CheckDir(file); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("CheckDir(file) error = %v, want not exist", err)
	}
	if err := localFS.CheckDir(filepath.Join(root, "nope")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("CheckDir(missing) error = %v, want not exist", err)
	}
}

func Test_NamesAndList(t *testing.T) {
	localFS := newTestFS(t)
	root := localFS.Root()
	writeFile(t, filepath.Join(root, "b.txt"), "bb")
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, ".hidden"), "h")
	if err := localFS.MakeDir(filepath.Join(root, "sub")); err != nil {
		t.Fatal(err)
	}

	names, err := localFS.Names(root)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a.txt", "b.txt", "sub"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Names = %v, want %v", names, want)
	}

	lines, err := localFS.List(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 4 {
		t.Fatalf("List returned %d lines, want 4: %v", len(lines), lines)
	}
	for _, line := range lines {
		if strings.HasSuffix(line, " sub") && !strings.HasPrefix(line, "d") {
			t.Errorf("directory line %q doesn't start with d", line)
		}
		if strings.HasSuffix(line, " b.txt") && !strings.Contains(line, " 2 ") {
			t.Errorf("line %q doesn't carry the size", line)
		}
	}
}

func Test_Rename(t *testing.T) {
	localFS := newTestFS(t)
	root := localFS.Root()
	from := filepath.Join(root, "from.txt")
	to := filepath.Join(root, "to.txt")
	writeFile(t, from, "data")

	if err := localFS.Rename(from, to); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(to); err != nil {
		t.Errorf("renamed file missing: %v", err)
	}
	if err := localFS.Rename(from, to); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Rename of a missing file error = %v, want not exist", err)
	}
	if err := localFS.Rename(root, to); !errors.Is(err, fs.ErrPermission) {
		t.Errorf("Rename of root error = %v, want permission", err)
	}
}
