package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Exists reports whether path exists. Errors other than "not found" are returned.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// EnsureDirectory ensures a directory exists
func EnsureDirectory(path string) error {
	return os.MkdirAll(path, dirPerm)
}

// CreateFile creates (or truncates) path, creating parent directories first.
func CreateFile(path string) (*os.File, error) {
	if err := EnsureDirectory(filepath.Dir(path)); err != nil {
		return nil, err
	}

	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, filePerm)
}

// NumberedPath returns path unchanged when nothing exists there, otherwise the
// first free sibling of the form name_2.ext, name_3.ext, ...
func NumberedPath(path string) string {
	if ok, _ := Exists(path); !ok {
		return path
	}

	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if strings.TrimSpace(ext) == "" || stem == "" {
		stem, ext = base, ""
	}

	for i := 2; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if ok, _ := Exists(candidate); !ok {
			return candidate
		}
	}
}

// Move renames src to dst, falling back to copy and remove when the rename
// crosses devices.
func Move(src, dst string) error {
	if err := EnsureDirectory(filepath.Dir(dst)); err != nil {
		return err
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	if _, statErr := os.Stat(src); statErr != nil {
		return err
	}

	if cerr := copyFile(src, dst); cerr != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("move %s to %s: %w", src, dst, cerr)
	}

	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

// RemoveAll deletes every existing path and returns the combined failures.
// Missing files are not an error.
func RemoveAll(paths ...string) error {
	var result *multierror.Error

	for _, p := range paths {
		if p == "" {
			continue
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
