// Package tempfiles spools large payloads, such as snapshot archives, through
// scratch files that clean themselves up once read.
package tempfiles

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Spool makes a scratch file under dir, creating the directory if needed.
// An empty dir means the OS temp directory.
func Spool(dir string, pattern string) (*os.File, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spool dir %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	return f, nil
}

// NewDeleteOnClose wraps an open file and removes it when the reader is closed.
func NewDeleteOnClose(file *os.File) io.ReadCloser {
	return &deleteOnCloseReadCloser{
		file: file,
		path: file.Name(),
	}
}

type deleteOnCloseReadCloser struct {
	file *os.File
	path string
	once sync.Once
}

func (d *deleteOnCloseReadCloser) Read(p []byte) (int, error) {
	return d.file.Read(p)
}

func (d *deleteOnCloseReadCloser) Close() error {
	var closeErr error
	var removeErr error
	d.once.Do(func() {
		closeErr = d.file.Close()
		if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
			removeErr = err
		}
	})
	if closeErr != nil {
		return closeErr
	}
	return removeErr
}
