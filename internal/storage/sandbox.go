// Package storage provides sandboxed file storage for mediarr assets.
// Every path is resolved inside a fixed base directory; anything that would
// escape it is rejected before touching the filesystem.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscapes is returned for paths that resolve outside the sandbox.
var ErrPathEscapes = errors.New("path escapes sandbox")

// Sandbox confines file operations to one directory tree.
type Sandbox struct {
	baseDir string
}

// NewSandbox creates a sandbox rooted at baseDir, creating it if needed.
func NewSandbox(baseDir string) (*Sandbox, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0750); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	return &Sandbox{baseDir: absPath}, nil
}

// BaseDir returns the absolute sandbox root.
func (s *Sandbox) BaseDir() string {
	return s.baseDir
}

// ResolvePath maps a relative path to an absolute one inside the sandbox.
func (s *Sandbox) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("%w: %s (absolute paths not allowed)", ErrPathEscapes, relativePath)
	}

	absPath, err := filepath.Abs(filepath.Join(s.baseDir, filepath.Clean(relativePath)))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	if absPath != s.baseDir && !strings.HasPrefix(absPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, relativePath)
	}
	return absPath, nil
}

// Exists reports whether a path exists inside the sandbox.
func (s *Sandbox) Exists(relativePath string) (bool, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking path: %w", err)
	}
	return true, nil
}

// Open opens a file inside the sandbox for reading.
func (s *Sandbox) Open(relativePath string) (*os.File, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// Remove deletes a file inside the sandbox. A missing file is not an error.
func (s *Sandbox) Remove(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	if path == s.baseDir {
		return fmt.Errorf("cannot remove sandbox base directory")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing path: %w", err)
	}
	return nil
}

// AtomicWriteReader copies r into relativePath through a temporary file
// and a rename, so readers never see a partially written file. The copy
// stops with ErrTooLarge once more than limit bytes are read; limit <= 0
// disables the check.
func (s *Sandbox) AtomicWriteReader(relativePath string, r io.Reader, limit int64) (int64, error) {
	targetPath, err := s.ResolvePath(relativePath)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return 0, fmt.Errorf("creating parent directory: %w", err)
	}

	tempPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(targetPath), randomHex(8)))
	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return 0, fmt.Errorf("creating temporary file: %w", err)
	}

	src := r
	if limit > 0 {
		// One extra byte distinguishes "exactly limit" from "over limit".
		src = io.LimitReader(r, limit+1)
	}
	n, copyErr := io.Copy(tempFile, src)
	closeErr := tempFile.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(tempPath)
		return n, fmt.Errorf("writing temporary file: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(tempPath)
		return n, fmt.Errorf("closing temporary file: %w", closeErr)
	case limit > 0 && n > limit:
		_ = os.Remove(tempPath)
		return n, ErrTooLarge
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		_ = os.Remove(tempPath)
		return n, fmt.Errorf("renaming to target: %w", err)
	}
	return n, nil
}

// ErrTooLarge is returned when a write exceeds its size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

func randomHex(n int) string {
	b := make([]byte, n/2+1)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", os.Getpid())
	}
	return hex.EncodeToString(b)[:n]
}
