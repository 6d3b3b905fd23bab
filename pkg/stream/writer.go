package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer appends JSON records, one per line.
type Writer struct {
	path  string
	f     *os.File
	buf   *bufio.Writer
	count int
}

// Create opens path for writing, discarding existing content.
func Create(path string) (*Writer, error) {
	return open(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
}

// Append opens path for appending, creating it if needed. A last line left
// unterminated by a crash is repaired first.
func Append(path string) (*Writer, error) {
	w, err := open(path, os.O_CREATE|os.O_RDWR|os.O_APPEND)
	if err != nil {
		return nil, err
	}
	if err := w.terminate(); err != nil {
		_ = w.f.Close()
		return nil, err
	}
	return w, nil
}

func open(path string, flag int) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stream directory: %w", err)
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream %s: %w", path, err)
	}
	return &Writer{path: path, f: f, buf: bufio.NewWriter(f)}, nil
}

// terminate repairs the end of the file left by an interrupted writer: a
// complete record missing its newline is terminated, and an undecodable
// fragment is cut off.
func (w *Writer) terminate() error {
	info, err := w.f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat stream %s: %w", w.path, err)
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	start, tail, err := lastLine(w.f, size)
	if err != nil {
		return fmt.Errorf("failed to read stream %s: %w", w.path, err)
	}
	if len(tail) == 0 {
		return nil
	}
	if json.Valid(bytes.TrimSpace(tail)) {
		if _, err := w.f.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("failed to terminate stream %s: %w", w.path, err)
		}
		return nil
	}
	if err := w.f.Truncate(start); err != nil {
		return fmt.Errorf("failed to truncate stream %s: %w", w.path, err)
	}
	return nil
}

// lastLine returns the offset and bytes after the final newline of f.
func lastLine(f *os.File, size int64) (int64, []byte, error) {
	const chunk = 4096
	var tail []byte
	end := size
	for end > 0 {
		n := int64(chunk)
		if end < n {
			n = end
		}
		buf := make([]byte, n)
		if _, err := f.ReadAt(buf, end-n); err != nil && err != io.EOF {
			return 0, nil, err
		}
		if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
			tail = append(buf[i+1:], tail...)
			return end - n + int64(i) + 1, tail, nil
		}
		tail = append(buf, tail...)
		end -= n
	}
	return 0, tail, nil
}

// Write appends one record and flushes it to the file.
func (w *Writer) Write(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.buf.Write(data); err != nil {
		return fmt.Errorf("failed to write record to %s: %w", w.path, err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", w.path, err)
	}
	w.count++
	return nil
}

// Count returns the number of records written through w.
func (w *Writer) Count() int {
	return w.count
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	flushErr := w.buf.Flush()
	closeErr := w.f.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// WriteAll replaces the stream at path with records.
func WriteAll[T any](path string, records []T) (err error) {
	w, err := Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
