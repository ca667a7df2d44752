package localturk

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

var (
	// ErrEmptyFile is returned when a header is expected but the file holds no
	// records.
	ErrEmptyFile = errors.New("localturk: file is empty")
	// ErrNoRows is returned by DeleteLastRow when there is nothing to delete.
	ErrNoRows = errors.New("localturk: file has no rows")
)

// ReadHeaders returns the first record of the file at path. Only the header
// is read; the file is closed before returning.
func ReadHeaders(path string) ([]string, error) {
	rows, err := OpenRows(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	return firstRecord(rows, path)
}

func firstRecord(rows *Rows, path string) (Record, error) {
	if rows.Next() {
		return rows.Record(), nil
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
}

// WriteCSV replaces the file at path with rows, one LF-terminated line each.
func WriteCSV(path string, rows []Record) error {
	return writeFile(path, rows, LF)
}

// writeFile writes rows to a temporary file next to path and renames it over
// path, so readers never observe a partially written file. The permissions of
// an existing file are kept.
func writeFile(path string, rows []Record, eol LineEnding) (err error) {
	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := NewWriter(tmp)
	w.LineEnding = eol
	for _, row := range rows {
		if err = w.Write(row); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Chmod(mode); err != nil {
		return fmt.Errorf("failed to set mode of %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// AppendRow adds row to the file at path.
//
// A missing file is created with row's keys as the header. When every key is
// already a column, a single line is appended using the file's line ending,
// after terminating the last line if needed. Otherwise the new keys become
// trailing columns: every existing row gains empty values for them and the
// whole file is rewritten.
func AppendRow(path string, row RowObject) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		header := Record(row.Keys())
		slog.Debug("Creating dataset", "path", path, "columns", len(header))
		return writeFile(path, []Record{header, row.Values(header)}, LF)
	} else if err != nil {
		return err
	}

	detected, err := DetectLineEnding(path)
	if err != nil {
		return fmt.Errorf("failed to detect line ending of %s: %w", path, err)
	}
	eol := detected.OrDefault()

	rows, err := OpenRows(path)
	if err != nil {
		return err
	}
	header, err := firstRecord(rows, path)
	// The header pass must be closed before the file is written to.
	if closeErr := rows.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	var added []string
	for k := range row.Fields() {
		if !slices.Contains(header, k) && !slices.Contains(added, k) {
			added = append(added, k)
		}
	}
	if len(added) == 0 {
		slog.Debug("Appending row", "path", path, "lineEnding", eol)
		return appendRecord(path, row.Values(header), eol)
	}
	slog.Debug("Adding columns", "path", path, "columns", added, "lineEnding", eol)
	return appendWithColumns(path, header, added, row, eol)
}

// appendRecord appends rec with a single write, preceded by eol when the file
// does not already end with one.
func appendRecord(path string, rec Record, eol LineEnding) error {
	terminated, err := endsWith(path, eol)
	if err != nil {
		return fmt.Errorf("failed to read the end of %s: %w", path, err)
	}
	line, err := encodeRecord(rec, eol)
	if err != nil {
		return err
	}
	if !terminated {
		line = append([]byte(eol), line...)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", path, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return f.Close()
}

// appendWithColumns rewrites the file at path with the columns in added
// appended to header, then row.
func appendWithColumns(path string, header Record, added []string, row RowObject, eol LineEnding) error {
	full := slices.Concat(header, added)
	out := []Record{full}
	padding := make([]string, len(added))
	first := true
	for rec, err := range ReadRows(path) {
		if err != nil {
			return err
		}
		if first {
			first = false
			continue
		}
		if len(rec) > len(header) {
			return fmt.Errorf("%s: record with %d fields under %d columns: %w", path, len(rec), len(header), ErrFieldCount)
		}
		// Short records are padded to the header first so new columns line up.
		fitted := slices.Concat(rec, make([]string, len(header)-len(rec)), padding)
		out = append(out, fitted)
	}
	out = append(out, row.Values(full))
	return writeFile(path, out, eol)
}

// DeleteLastRow removes the last record of the file at path and returns it.
// The file keeps its line ending. The header counts as a record, so deleting
// from a header-only file leaves it empty.
func DeleteLastRow(path string) (Record, error) {
	detected, err := DetectLineEnding(path)
	if err != nil {
		return nil, err
	}
	var all []Record
	for rec, err := range ReadRows(path) {
		if err != nil {
			return nil, err
		}
		all = append(all, rec)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRows, path)
	}
	last := all[len(all)-1]
	if err := writeFile(path, all[:len(all)-1], detected.OrDefault()); err != nil {
		return nil, err
	}
	slog.Debug("Deleted last row", "path", path, "remaining", len(all)-1)
	return last, nil
}
