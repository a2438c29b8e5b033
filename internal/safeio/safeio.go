// Package safeio confines file access to a fixed directory root.
// Profile ids and other request-supplied names are resolved through a
// Dir so they can never address anything outside it.
package safeio

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a directory jail. All reads resolve relative to its root; paths
// that escape it, directly or through symlinks, are rejected.
type Dir struct {
	abs string
}

// NewDir binds a jail to root. The root must exist and be a directory;
// symlinks in it are resolved once so later prefix checks are exact.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("safeio: root is not a directory")
	}
	return &Dir{abs: abs}, nil
}

// Root returns the resolved absolute root.
func (d *Dir) Root() string { return d.abs }

// ReadFile reads the named file under the root.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	p, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("safeio: path is a directory")
	}
	return os.ReadFile(p)
}

// ReadDir lists the named directory under the root. "." lists the root
// itself.
func (d *Dir) ReadDir(name string) ([]fs.DirEntry, error) {
	p, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(p)
}

func (d *Dir) resolve(name string) (string, error) {
	if d == nil {
		return "", errors.New("safeio: directory not configured")
	}
	if name == "" {
		return "", errors.New("safeio: empty path")
	}
	if filepath.IsAbs(name) {
		return "", errors.New("safeio: absolute path not allowed")
	}
	clean := filepath.Clean(name)
	if clean == "." {
		return d.abs, nil
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("safeio: path traversal not allowed")
	}

	resolved, err := filepath.EvalSymlinks(filepath.Join(d.abs, clean))
	if err != nil {
		return "", err
	}
	if !underRoot(resolved, d.abs) {
		return "", errors.New("safeio: path resolves outside root")
	}
	return resolved, nil
}

func underRoot(path, root string) bool {
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(path, root)
}
