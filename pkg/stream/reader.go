package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ScanStats describes one pass over a stream.
type ScanStats struct {
	Records   int
	Truncated bool
}

// Scan decodes each line of path into a T and calls fn with it. A missing
// file is an empty stream. A final line without a newline that does not
// decode is skipped and reported as Truncated; any other bad line is an
// error. Blank lines are ignored.
func Scan[T any](path string, fn func(T) error) (ScanStats, error) {
	var stats ScanStats
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("failed to open stream %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return stats, fmt.Errorf("failed to read stream %s: %w", path, readErr)
		}
		terminated := readErr == nil

		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var rec T
			if err := json.Unmarshal(trimmed, &rec); err != nil {
				if !terminated {
					stats.Truncated = true
					return stats, nil
				}
				return stats, fmt.Errorf("stream %s line %d: %w", path, lineNo, err)
			}
			if err := fn(rec); err != nil {
				return stats, err
			}
			stats.Records++
		}

		if !terminated {
			return stats, nil
		}
	}
}

// ReadAll returns every record in path.
func ReadAll[T any](path string) ([]T, error) {
	var out []T
	_, err := Scan(path, func(rec T) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Keys returns the set of keys of the records in path. It is how runners
// compute the work already done before resuming.
func Keys[T any](path string, key func(T) string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	_, err := Scan(path, func(rec T) error {
		set[key(rec)] = struct{}{}
		return nil
	})
	return set, err
}
