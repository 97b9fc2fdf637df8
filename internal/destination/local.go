package destination

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rescale/rescale-qr/internal/diskspace"
	"github.com/rescale/rescale-qr/internal/pathutil"
)

// Local writes instances below a directory.
type Local struct {
	root string
}

// NewLocal returns a store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("local destination requires a directory")
	}
	abs, err := pathutil.ResolveAbsolutePath(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination path: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}
	return &Local{root: abs}, nil
}

// Put writes r to <root>/<key> via a temporary file and rename, so a
// cancelled or failed write never leaves a partial instance behind.
func (l *Local) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	target := filepath.Join(l.root, filepath.FromSlash(key))

	if err := diskspace.Ensure(target, size); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".partial-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // No-op after a successful rename

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", key, err)
	}
	return nil
}

// Describe returns the root directory.
func (l *Local) Describe() string {
	return l.root
}

// Root returns the absolute root directory.
func (l *Local) Root() string {
	return l.root
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
