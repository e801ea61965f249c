package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/me/prioadvisor/pkg/model"
)

// Exchange is the single handoff point between this process and the
// directive consumer. Callers never see file handles.
type Exchange interface {
	// Publish replaces the current batch with b. Readers observe either the
	// previous batch or b in full.
	Publish(ctx context.Context, b *model.Batch) error

	// ReadLatest returns the current batch, or nil when none is published.
	ReadLatest(ctx context.Context) (*model.Batch, error)
}

// FileExchange publishes batches as a CSV file replaced by atomic rename.
type FileExchange struct {
	path   string
	logger *slog.Logger

	createTemp func(dir, pattern string) (*os.File, error)
	rename     func(oldpath, newpath string) error
	remove     func(name string) error
}

// NewFileExchange creates a FileExchange publishing to path.
func NewFileExchange(path string, logger *slog.Logger) *FileExchange {
	return &FileExchange{
		path:       path,
		logger:     logger.With("component", "exchange"),
		createTemp: os.CreateTemp,
		rename:     os.Rename,
		remove:     os.Remove,
	}
}

// Path returns the published location.
func (x *FileExchange) Path() string {
	return x.path
}

// Publish stages the batch in a temp file next to the published path,
// syncs it, and renames it into place. On any failure the temp file is
// discarded and the previous batch is left in place.
func (x *FileExchange) Publish(ctx context.Context, b *model.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b == nil || len(b.Directives) == 0 {
		return fmt.Errorf("publish: empty batch")
	}

	var buf bytes.Buffer
	if err := Encode(&buf, b); err != nil {
		return fmt.Errorf("encode batch %d: %w", b.Tick, err)
	}

	dir, base := filepath.Split(x.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := x.createTemp(dir, "."+base+".*.tmp")
	if err != nil {
		if isOutOfStorage(err) {
			return &model.FatalError{Op: "create temp batch", Err: err}
		}
		return model.NewTransientError("create temp batch", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			x.discard(tmpName)
		}
	}()

	if err := writeAndSync(tmp, buf.Bytes()); err != nil {
		return model.NewTransientError("write temp batch", err)
	}

	if err := x.rename(tmpName, x.path); err != nil {
		if !replaceUnsupported(err) {
			return model.NewTransientError("replace batch", err)
		}
		x.logger.Warn("atomic replace unsupported, falling back to swap", "path", x.path, "error", err)
		if err := x.swap(tmpName, tmpName+".prev"); err != nil {
			return model.NewTransientError("replace batch", err)
		}
	}
	committed = true
	syncDir(dir)

	x.logger.Debug("batch published", "path", x.path, "tick", b.Tick, "tasks", len(b.Directives))
	return nil
}

// swap moves the published file aside, renames tmpName into place, and
// restores the aside copy if that rename fails. Readers between the two
// renames see no file rather than a torn one.
func (x *FileExchange) swap(tmpName, aside string) error {
	hadPrevious := true
	if err := x.rename(x.path, aside); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("move previous batch aside: %w", err)
		}
		hadPrevious = false
	}
	if err := x.rename(tmpName, x.path); err != nil {
		if hadPrevious {
			if rerr := x.rename(aside, x.path); rerr != nil {
				x.logger.Error("restore previous batch", "path", x.path, "aside", aside, "error", rerr)
				return errors.Join(err, rerr)
			}
		}
		return err
	}
	if hadPrevious {
		x.discard(aside)
	}
	return nil
}

func (x *FileExchange) discard(name string) {
	if err := x.remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		x.logger.Warn("remove stale batch file", "path", name, "error", err)
	}
}

// ReadLatest parses the published file. A missing file is not an error.
func (x *FileExchange) ReadLatest(ctx context.Context) (*model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(x.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewTransientError("open batch", err)
	}
	defer f.Close()

	b, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", x.path, err)
	}
	return b, nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// syncDir flushes the rename itself. Not every platform can fsync a
// directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

// replaceUnsupported reports whether a rename failed because the platform
// cannot rename over an existing file, as opposed to an I/O or permission
// failure that a retry next cycle should handle.
func replaceUnsupported(err error) bool {
	if errors.Is(err, fs.ErrExist) || errors.Is(err, syscall.ENOTSUP) {
		return true
	}
	return runtime.GOOS == "windows" && errors.Is(err, fs.ErrPermission)
}

func isOutOfStorage(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EROFS) || errors.Is(err, syscall.EDQUOT)
}
