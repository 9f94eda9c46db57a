package objectsink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink writes uploads into a directory, one file per upload name.
// The first chunk (offset 0) creates or truncates the file.
type FileSink struct {
	open map[string]*os.File
	dir  string
	mu   sync.Mutex
}

// NewFileSink creates a sink rooted at dir, creating it if necessary.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, ErrInvalidConfig
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectsink: create upload dir: %w", err)
	}
	return &FileSink{dir: dir, open: make(map[string]*os.File)}, nil
}

// Path returns where filename is stored.
func (f *FileSink) Path(filename string) string {
	name, err := cleanName(filename)
	if err != nil {
		return ""
	}
	return filepath.Join(f.dir, name)
}

// Write implements Sink.
func (f *FileSink) Write(_ context.Context, filename string, offset int64, data []byte, last bool) error {
	name, err := cleanName(filename)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.open[name]
	if !ok {
		if offset != 0 {
			return fmt.Errorf("%w: %s starts at %d", ErrOutOfOrder, name, offset)
		}
		file, err = os.OpenFile(filepath.Join(f.dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("objectsink: open %s: %w", name, err)
		}
		f.open[name] = file
	}

	if _, err := file.WriteAt(data, offset); err != nil {
		delete(f.open, name)
		_ = file.Close()
		return fmt.Errorf("objectsink: write %s: %w", name, err)
	}

	if last {
		delete(f.open, name)
		return file.Close()
	}
	return nil
}

// Abort implements Aborter. The partial file is removed.
func (f *FileSink) Abort(filename string) {
	name, err := cleanName(filename)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.open[name]; ok {
		delete(f.open, name)
		_ = file.Close()
		_ = os.Remove(filepath.Join(f.dir, name))
	}
}

// Close closes any files left open by interrupted uploads.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, file := range f.open {
		_ = file.Close()
		delete(f.open, name)
	}
	return nil
}

var (
	_ Sink    = (*FileSink)(nil)
	_ Aborter = (*FileSink)(nil)
)
