// Package extract writes container entries to the filesystem.
package extract

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for entry names that would escape the
// destination directory, lexically or through a symlink.
var ErrUnsafePath = errors.New("assetpack: unsafe entry path")

// FileSink writes entries below a destination directory with atomic writes.
//
// Files are written to a temporary file in the same directory, then renamed
// to the final path on Commit, so partially written files are never visible
// at the final path. All filesystem access goes through an os.Root opened on
// the destination directory.
type FileSink struct {
	destDir   string
	overwrite bool
}

// Option configures a FileSink.
type Option func(*FileSink)

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) Option {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// NewFileSink creates a FileSink that writes to destDir.
// destDir and parent directories are created automatically as needed.
func NewFileSink(destDir string, opts ...Option) *FileSink {
	s := &FileSink{destDir: destDir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CleanName turns a stored entry name into a slash-separated relative path.
// Backslashes are treated as separators. Names that are empty, absolute or
// climb out of the root are rejected.
func CleanName(name string) (string, error) {
	p := strings.ReplaceAll(name, `\`, "/")
	if p == "" || strings.HasPrefix(p, "/") || strings.ContainsRune(p, 0) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return p, nil
}

// Path returns the destination path for name.
func (s *FileSink) Path(name string) (string, error) {
	rel, err := CleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.destDir, filepath.FromSlash(rel)), nil
}

// ShouldWrite returns false if the file already exists and overwrite is
// disabled.
func (s *FileSink) ShouldWrite(name string) bool {
	if s.overwrite {
		return true
	}
	rel, err := CleanName(name)
	if err != nil || s.escapes(rel) {
		return true // Writer reports the error
	}
	_, err = os.Lstat(filepath.Join(s.destDir, filepath.FromSlash(rel)))
	return errors.Is(err, fs.ErrNotExist)
}

// escapes reports whether an existing component of rel is a symlink that
// resolves outside the destination directory, or cannot be resolved.
func (s *FileSink) escapes(rel string) bool {
	base, err := filepath.EvalSymlinks(s.destDir)
	if err != nil {
		return false
	}
	p := base
	for _, part := range strings.Split(rel, "/") {
		p = filepath.Join(p, part)
		fi, err := os.Lstat(p)
		if err != nil {
			return false
		}
		if fi.Mode()&fs.ModeSymlink == 0 {
			continue
		}
		resolved, err := filepath.EvalSymlinks(p)
		if err != nil {
			return true
		}
		r, err := filepath.Rel(base, resolved)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return true
		}
		p = resolved
	}
	return false
}

// Writer returns a Committer that writes to a temp file and renames on Commit.
func (s *FileSink) Writer(name string) (*Committer, error) {
	rel, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	if s.escapes(rel) {
		return nil, fmt.Errorf("%w: %q leaves %s through a symlink", ErrUnsafePath, name, s.destDir)
	}
	destRel := filepath.FromSlash(rel)
	destPath := filepath.Join(s.destDir, destRel)

	if err := os.MkdirAll(s.destDir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", s.destDir, err)
	}
	root, err := os.OpenRoot(s.destDir)
	if err != nil {
		return nil, fmt.Errorf("open destination root %s: %w", s.destDir, err)
	}
	if err := root.MkdirAll(filepath.Dir(destRel), 0o750); err != nil {
		_ = root.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("create directory for %q: %w", name, err)
	}

	tmp, tmpRel, err := createTempFile(root, filepath.Dir(destRel), ".assetpack-")
	if err != nil {
		_ = root.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &Committer{
		destPath: destPath,
		destRel:  destRel,
		tmp:      tmp,
		tmpRel:   tmpRel,
		root:     root,
	}, nil
}

// Committer writes one entry to a temp file below the destination root.
type Committer struct {
	destPath string
	destRel  string
	tmp      *os.File
	tmpRel   string
	root     *os.Root
}

// Write implements io.Writer.
func (c *Committer) Write(p []byte) (int, error) {
	return c.tmp.Write(p)
}

// Path returns the final destination path.
func (c *Committer) Path() string {
	return c.destPath
}

// Commit closes the temp file and renames it to the final path.
func (c *Committer) Commit() error {
	if err := c.tmp.Close(); err != nil {
		_ = c.root.Remove(c.tmpRel) //nolint:errcheck // best-effort cleanup
		_ = c.root.Close()          //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := c.root.Rename(c.tmpRel, c.destRel); err != nil {
		_ = c.root.Remove(c.tmpRel) //nolint:errcheck // best-effort cleanup
		_ = c.root.Close()          //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.destPath, err)
	}
	_ = c.root.Close() //nolint:errcheck // best-effort cleanup
	return nil
}

// Discard closes and removes the temp file.
func (c *Committer) Discard() error {
	_ = c.tmp.Close() //nolint:errcheck // we're cleaning up
	if err := c.root.Remove(c.tmpRel); err != nil {
		_ = c.root.Close() //nolint:errcheck // best-effort cleanup
		return err
	}
	return c.root.Close()
}

func createTempFile(root *os.Root, dir, prefix string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, "", err
		}
		rel := filepath.Join(dir, prefix+hex.EncodeToString(b[:]))
		f, err := root.OpenFile(rel, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, rel, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}
