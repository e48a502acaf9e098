// Package fsutil wraps the handful of filesystem calls sqlitectl needs:
// existence checks, sizes, byte-for-byte copies and permission hardening.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// OwnerOnly is the mode applied to every file sqlitectl writes.
const OwnerOnly fs.FileMode = 0o600

var (
	// ErrNotFound is returned when a required source or target file is missing.
	ErrNotFound = errors.New("file not found")

	// ErrFilesystem wraps copy, chmod and stat failures.
	ErrFilesystem = errors.New("filesystem error")
)

// Exists reports whether path exists. Errors other than "does not exist"
// are returned wrapped in ErrFilesystem.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat %s: %w", ErrFilesystem, path, err)
}

// RequireFile returns ErrNotFound if path does not exist and ErrFilesystem
// if it exists but is not a regular file.
func RequireFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrFilesystem, path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrFilesystem, path)
	}
	return nil
}

// Size returns the size of path in bytes.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return 0, fmt.Errorf("%w: stat %s: %w", ErrFilesystem, path, err)
	}
	return info.Size(), nil
}

// SameFile reports whether a and b name the same file, including through
// symlinks and hard links. A missing b is never the same file.
func SameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%w: %s", ErrNotFound, a)
		}
		return false, fmt.Errorf("%w: stat %s: %w", ErrFilesystem, a, err)
	}
	bi, err := os.Stat(b)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %w", ErrFilesystem, b, err)
	}
	return os.SameFile(ai, bi), nil
}

// CopyFile copies src to dst byte for byte, truncating dst if it exists.
// A newly created dst starts out with OwnerOnly permissions. It returns the
// number of bytes written. Copying a file onto itself fails with
// ErrFilesystem before dst is touched.
func CopyFile(src, dst string) (int64, error) {
	return copyFile(src, dst, os.O_TRUNC)
}

// CopyNew is CopyFile for a destination that must not exist yet; an existing
// dst fails with ErrFilesystem and is left untouched.
func CopyNew(src, dst string) (int64, error) {
	return copyFile(src, dst, os.O_EXCL)
}

func copyFile(src, dst string, mode int) (written int64, err error) {
	same, err := SameFile(src, dst)
	if err != nil {
		return 0, err
	}
	if same {
		return 0, fmt.Errorf("%w: %s and %s are the same file", ErrFilesystem, src, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return 0, fmt.Errorf("%w: open %s: %w", ErrFilesystem, src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|mode, OwnerOnly)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", ErrFilesystem, dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %w", ErrFilesystem, dst, cerr)
		}
	}()

	written, err = io.Copy(out, in)
	if err != nil {
		return written, fmt.Errorf("%w: copy %s to %s: %w", ErrFilesystem, src, dst, err)
	}
	if err := out.Sync(); err != nil {
		return written, fmt.Errorf("%w: sync %s: %w", ErrFilesystem, dst, err)
	}
	return written, nil
}

// Restrict sets path to owner read/write only.
func Restrict(path string) error {
	if err := os.Chmod(path, OwnerOnly); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrFilesystem, path, err)
	}
	return nil
}

// Sidecars returns the SQLite -wal and -shm files that exist next to path.
func Sidecars(path string) []string {
	var found []string
	for _, suffix := range []string{"-wal", "-shm"} {
		if ok, _ := Exists(path + suffix); ok {
			found = append(found, path+suffix)
		}
	}
	return found
}
