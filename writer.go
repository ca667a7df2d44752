package localturk

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrEmptyRecord is returned when writing a record with no fields. Such a
// record would encode as a bare line ending, which readers skip.
var ErrEmptyRecord = errors.New("localturk: record has no fields")

var (
	errNilWriter      = errors.New("localturk: writer is nil")
	errWriterNoTarget = errors.New("localturk: writer destination cannot be nil")
)

// Writer encodes records as delimited text.
type Writer struct {
	dst *bufio.Writer

	// Comma is the field delimiter. Default is ','.
	Comma byte
	// Quote is the quote character. Default is '"'.
	Quote byte
	// LineEnding terminates every record. Default is LF.
	LineEnding LineEnding
	// AlwaysQuote quotes every field, not only those that need it.
	AlwaysQuote bool

	err error
}

// NewWriter returns a Writer buffering output to w.
func NewWriter(w io.Writer) *Writer {
	if w == nil {
		panic(errWriterNoTarget.Error())
	}
	return &Writer{
		dst:        bufio.NewWriterSize(w, defaultBufferSize),
		Comma:      ',',
		Quote:      '"',
		LineEnding: LF,
	}
}

// Reset points the writer at dst, keeping its configuration and clearing any
// stored error.
func (w *Writer) Reset(dst io.Writer) {
	if w == nil {
		panic(errNilWriter.Error())
	}
	if dst == nil {
		panic(errWriterNoTarget.Error())
	}
	if w.dst == nil {
		w.dst = bufio.NewWriterSize(dst, defaultBufferSize)
	} else {
		w.dst.Reset(dst)
	}
	w.err = nil
}

// Write encodes one record followed by the line ending. A record with no
// fields is rejected with ErrEmptyRecord and leaves the writer usable.
func (w *Writer) Write(record []string) error {
	if w == nil {
		return errNilWriter
	}
	if w.dst == nil {
		return errWriterNoTarget
	}
	if w.err != nil {
		return w.err
	}
	if len(record) == 0 {
		return ErrEmptyRecord
	}

	comma, quote := w.Comma, w.Quote
	if comma == 0 {
		comma = ','
	}
	if quote == 0 {
		quote = '"'
	}
	eol := w.LineEnding.OrDefault()

	for i, field := range record {
		if i > 0 {
			if err := w.dst.WriteByte(comma); err != nil {
				w.err = err
				return err
			}
		}
		// A lone empty field is quoted so it does not read back as an empty line.
		force := len(record) == 1 && field == ""
		if err := w.writeField(field, comma, quote, force); err != nil {
			w.err = err
			return err
		}
	}
	if _, err := w.dst.WriteString(string(eol)); err != nil {
		w.err = err
		return err
	}
	return nil
}

// WriteAll writes records, stopping at the first error.
func (w *Writer) WriteAll(records [][]string) error {
	if w == nil {
		return errNilWriter
	}
	for _, record := range records {
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered data to the destination.
func (w *Writer) Flush() error {
	if w == nil {
		return errNilWriter
	}
	if w.dst == nil {
		return errWriterNoTarget
	}
	if w.err != nil {
		return w.err
	}
	if err := w.dst.Flush(); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Error returns the first error the writer hit.
func (w *Writer) Error() error {
	if w == nil {
		return errNilWriter
	}
	return w.err
}

func (w *Writer) writeField(field string, comma, quote byte, force bool) error {
	if !force && !w.AlwaysQuote && !fieldNeedsQuote(field, comma, quote) {
		_, err := w.dst.WriteString(field)
		return err
	}
	if err := w.dst.WriteByte(quote); err != nil {
		return err
	}
	start := 0
	for i := 0; i < len(field); i++ {
		if field[i] != quote {
			continue
		}
		// Write through the quote, then write it again.
		if _, err := w.dst.WriteString(field[start : i+1]); err != nil {
			return err
		}
		if err := w.dst.WriteByte(quote); err != nil {
			return err
		}
		start = i + 1
	}
	if _, err := w.dst.WriteString(field[start:]); err != nil {
		return err
	}
	return w.dst.WriteByte(quote)
}

// fieldNeedsQuote reports whether field contains the delimiter, the quote
// character or a line break.
func fieldNeedsQuote(field string, comma, quote byte) bool {
	for i := 0; i < len(field); i++ {
		switch field[i] {
		case quote, comma, '\n', '\r':
			return true
		}
	}
	return false
}

// encodeRecord returns record encoded as one line terminated by eol.
func encodeRecord(record []string, eol LineEnding) ([]byte, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.LineEnding = eol
	if err := w.Write(record); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
