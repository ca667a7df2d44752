package localturk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unsafe"
)

const defaultBufferSize = 4 << 10 // 4096 bytes

var (
	// ErrBareQuote is returned when a quote appears inside an unquoted field.
	ErrBareQuote = errors.New("localturk: bare quote in non-quoted field")
	// ErrUnterminatedQuote is returned when input ends inside a quoted field.
	ErrUnterminatedQuote = errors.New("localturk: unterminated quoted field")
	// ErrTrailingQuote is returned when data follows the closing quote of a field.
	ErrTrailingQuote = errors.New("localturk: extraneous data after closing quote")
	// ErrFieldCount is returned when a record has an unexpected number of fields.
	ErrFieldCount = errors.New("localturk: wrong number of fields")

	// errSkippedLine is internal: readRecord consumed an empty line that Read drops.
	errSkippedLine = errors.New("localturk: skipped empty line")
)

// ParseError carries the position of a malformed record.
type ParseError struct {
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("localturk: parse error on line %d, column %d: %v", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Reader decodes delimited text one record at a time.
//
// Records end at LF, CRLF or a bare CR outside of quotes. A quoted field may
// contain the delimiter and line breaks; a doubled quote inside it decodes to
// a single quote character.
type Reader struct {
	src io.Reader

	// Comma is the field delimiter. Default is ','.
	Comma byte
	// Quote is the quote character. Default is '"'.
	Quote byte
	// ReuseRecord lets Read return a slice that aliases the previous record.
	ReuseRecord bool
	// FieldsPerRecord is the expected record width. Zero captures the width of
	// the first record; a negative value disables the check.
	FieldsPerRecord int
	// SkipEmptyLines drops records produced by empty physical lines. A quoted
	// empty field ("") still yields a record.
	SkipEmptyLines bool

	buf    []byte
	bufPos int
	bufLen int
	bufErr error

	record       []string
	dataBuf      []byte
	fieldBounds  []int
	recordQuoted bool
	finished     bool
	line         int
	recordLine   int
}

// NewReader returns a Reader consuming src. It panics if src is nil.
func NewReader(src io.Reader) *Reader {
	if src == nil {
		panic("localturk: reader source cannot be nil")
	}
	return &Reader{
		src:         src,
		Comma:       ',',
		Quote:       '"',
		buf:         make([]byte, defaultBufferSize),
		record:      make([]string, 0, 16),
		dataBuf:     make([]byte, 0, 512),
		fieldBounds: make([]int, 0, 32),
		line:        1,
	}
}

// Read returns the next record, or io.EOF once the input is exhausted.
func (r *Reader) Read() ([]string, error) {
	if r == nil || r.src == nil {
		return nil, io.EOF
	}
	for {
		rec, err := r.readRecord()
		if err != errSkippedLine {
			return rec, err
		}
	}
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([][]string, error) {
	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

// Buffered reports how many undecoded bytes remain from the last read of the
// source.
func (r *Reader) Buffered() int {
	return r.bufLen - r.bufPos
}

// RecordLine returns the line on which the most recently read record started.
func (r *Reader) RecordLine() int {
	return r.recordLine
}

func (r *Reader) readRecord() ([]string, error) {
	if r.finished {
		return nil, io.EOF
	}

	_, quote := r.separators()

	if r.ReuseRecord {
		r.record = r.record[:0]
	} else {
		r.record = nil
	}
	r.dataBuf = r.dataBuf[:0]
	r.fieldBounds = r.fieldBounds[:0]
	r.recordQuoted = false
	r.recordLine = r.line

	inQuotes := false
	sawQuotedField := false
	column := 1
	fieldStart := 0

	for {
		if r.bufPos >= r.bufLen {
			if r.bufErr != nil {
				err := r.bufErr
				r.bufErr = nil
				if err != io.EOF {
					return nil, err
				}
				r.finished = true
				if inQuotes {
					return nil, r.wrapError(column, ErrUnterminatedQuote)
				}
				// Flush the last record when the input lacks a final terminator.
				if len(r.fieldBounds) > 0 || len(r.dataBuf) > 0 || sawQuotedField {
					r.fieldBounds = append(r.fieldBounds, fieldStart, len(r.dataBuf))
					return r.finishRecord()
				}
				return nil, io.EOF
			}
			r.fill()
			continue
		}

		if !inQuotes {
			data := r.buf[r.bufPos:r.bufLen]
			quoteIdx := bytes.IndexByte(data, quote)
			if quoteIdx != 0 {
				// Consume plain bytes up to the next quote, or the whole chunk.
				end := r.bufLen
				if quoteIdx > 0 {
					end = r.bufPos + quoteIdx
				}
				done, err := r.consumePlain(end, &column, &fieldStart, &sawQuotedField)
				if err != nil {
					return nil, err
				}
				if done {
					return r.finishRecord()
				}
				if r.bufPos >= r.bufLen {
					continue
				}
			}
		}

		curColumn := column
		b := r.buf[r.bufPos]
		r.bufPos++

		if inQuotes {
			switch b {
			case quote:
				next, err := r.peekByte()
				if err == nil && next == quote {
					r.bufPos++
					r.dataBuf = append(r.dataBuf, quote)
					column = curColumn + 2
					continue
				}
				if err != nil && err != io.EOF {
					return nil, err
				}
				inQuotes = false
				column = curColumn + 1
			case '\n':
				r.dataBuf = append(r.dataBuf, b)
				r.line++
				column = 1
			default:
				// Copy the run of bytes up to the next quote or LF.
				start := r.bufPos - 1
				run := 1
				for _, c := range r.buf[r.bufPos:r.bufLen] {
					if c == quote || c == '\n' {
						break
					}
					run++
				}
				r.bufPos += run - 1
				column = curColumn + run
				r.dataBuf = append(r.dataBuf, r.buf[start:start+run]...)
			}
			continue
		}

		// consumePlain always stops in front of a quote, so b is one here. It
		// opens a field only as the field's first byte.
		if len(r.dataBuf) != fieldStart || sawQuotedField {
			return nil, r.wrapError(curColumn, ErrBareQuote)
		}
		inQuotes = true
		sawQuotedField = true
		r.recordQuoted = true
		column = curColumn + 1
	}
}

func (r *Reader) separators() (comma, quote byte) {
	comma, quote = r.Comma, r.Quote
	if comma == 0 {
		comma = ','
	}
	if quote == 0 {
		quote = '"'
	}
	return comma, quote
}

// fill pulls the next chunk from src into the working buffer.
func (r *Reader) fill() {
	n, err := r.src.Read(r.buf)
	if n == 0 {
		r.bufErr = err
		return
	}
	r.bufPos = 0
	r.bufLen = n
	r.bufErr = err
}

// finishRecord turns the accumulated bounds into a record, or reports
// errSkippedLine for an empty line when SkipEmptyLines is set.
func (r *Reader) finishRecord() ([]string, error) {
	if r.SkipEmptyLines && len(r.fieldBounds) == 2 && r.fieldBounds[1] == 0 && !r.recordQuoted {
		return nil, errSkippedLine
	}
	return r.buildRecord()
}

func (r *Reader) buildRecord() ([]string, error) {
	fieldCount := len(r.fieldBounds) / 2

	var recordStr string
	if r.ReuseRecord {
		if len(r.dataBuf) > 0 {
			// Zero-copy: fields share the reader's data buffer until the next Read.
			recordStr = unsafe.String(unsafe.SliceData(r.dataBuf), len(r.dataBuf))
		}
		if cap(r.record) < fieldCount {
			r.record = make([]string, fieldCount)
		}
		r.record = r.record[:fieldCount]
	} else {
		recordStr = string(r.dataBuf)
		r.record = make([]string, fieldCount)
	}

	for i := range fieldCount {
		r.record[i] = recordStr[r.fieldBounds[2*i]:r.fieldBounds[2*i+1]]
	}

	switch {
	case r.FieldsPerRecord < 0:
	case r.FieldsPerRecord == 0:
		r.FieldsPerRecord = fieldCount
	case fieldCount != r.FieldsPerRecord:
		return r.record, &ParseError{Line: r.recordLine, Column: 1, Err: ErrFieldCount}
	}
	return r.record, nil
}

func (r *Reader) wrapError(column int, err error) error {
	return &ParseError{Line: r.line, Column: column, Err: err}
}

// consumePlain consumes unquoted bytes before end until a delimiter, a record
// terminator or end itself. It reports whether a record ended.
func (r *Reader) consumePlain(end int, column, fieldStart *int, sawQuotedField *bool) (bool, error) {
	comma, _ := r.separators()

	for r.bufPos < end {
		data := r.buf[r.bufPos:end]
		next := len(data)
		delim := byte(0)
		for _, d := range [...]byte{comma, '\n', '\r'} {
			if idx := bytes.IndexByte(data[:next], d); idx >= 0 {
				next = idx
				delim = d
			}
		}

		if next > 0 {
			if *sawQuotedField {
				return false, r.wrapError(*column, ErrTrailingQuote)
			}
			r.dataBuf = append(r.dataBuf, data[:next]...)
			r.bufPos += next
			*column += next
		}
		if delim == 0 {
			return false, nil
		}

		r.bufPos++
		r.fieldBounds = append(r.fieldBounds, *fieldStart, len(r.dataBuf))
		*sawQuotedField = false
		if delim == comma {
			*fieldStart = len(r.dataBuf)
			*column++
			continue
		}
		if delim == '\r' {
			// CRLF is one terminator.
			nextByte, err := r.peekByte()
			if err == nil && nextByte == '\n' {
				r.bufPos++
			} else if err != nil && err != io.EOF {
				return false, err
			}
		}
		r.line++
		*column = 1
		return true, nil
	}
	return false, nil
}

// peekByte returns the next byte without consuming it, refilling as needed.
func (r *Reader) peekByte() (byte, error) {
	for {
		if r.bufPos < r.bufLen {
			return r.buf[r.bufPos], nil
		}
		if r.bufErr != nil {
			return 0, r.bufErr
		}
		n, err := r.src.Read(r.buf)
		if n == 0 && err != nil {
			return 0, err
		}
		if n == 0 {
			continue
		}
		r.bufPos = 0
		r.bufLen = n
		r.bufErr = err
	}
}
