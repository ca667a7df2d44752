package localturk

import (
	"bytes"
	"io"
	"os"
)

// lineEndingProbeSize bounds how much of a file DetectLineEnding inspects.
const lineEndingProbeSize = 10_000

// LineEnding is the byte sequence a file uses to terminate its lines.
type LineEnding string

const (
	LF   LineEnding = "\n"
	CRLF LineEnding = "\r\n"
	CR   LineEnding = "\r"
	// Undetermined is reported when no terminator appears in the probed prefix.
	Undetermined LineEnding = ""
)

// OrDefault returns LF for an undetermined line ending.
func (e LineEnding) OrDefault() LineEnding {
	if e == Undetermined {
		return LF
	}
	return e
}

// String returns an escaped form suitable for logs.
func (e LineEnding) String() string {
	switch e {
	case LF:
		return `\n`
	case CRLF:
		return `\r\n`
	case CR:
		return `\r`
	case Undetermined:
		return "undetermined"
	default:
		return string(e)
	}
}

// DetectLineEnding classifies the newline convention of the file at path from
// the first terminator found in its leading bytes. Later terminators are
// ignored even if they differ.
func DetectLineEnding(path string) (LineEnding, error) {
	f, err := os.Open(path)
	if err != nil {
		return Undetermined, err
	}
	defer func() {
		_ = f.Close()
	}()

	// One extra byte tells a CR at the edge of the window apart from CRLF.
	buf := make([]byte, lineEndingProbeSize+1)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Undetermined, err
	}
	return detectLineEnding(buf[:n], n > lineEndingProbeSize), nil
}

// DetectLineEndingBytes classifies the newline convention of data.
func DetectLineEndingBytes(data []byte) LineEnding {
	return detectLineEnding(data, false)
}

// detectLineEnding scans data left to right. When truncated is set, the last
// byte only serves as lookahead for a CR at the end of the probe window.
func detectLineEnding(data []byte, truncated bool) LineEnding {
	limit := len(data)
	if truncated {
		limit--
	}
	i := bytes.IndexAny(data[:limit], "\r\n")
	if i < 0 {
		return Undetermined
	}
	if data[i] == '\n' {
		return LF
	}
	if i+1 < len(data) && data[i+1] == '\n' {
		return CRLF
	}
	return CR
}

// endsWith reports whether the file at path ends with suffix. It only reads
// the trailing len(suffix) bytes.
func endsWith(path string, suffix LineEnding) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	n := int64(len(suffix))
	if info.Size() < n {
		return false, nil
	}
	tail := make([]byte, n)
	if _, err := f.ReadAt(tail, info.Size()-n); err != nil {
		return false, err
	}
	return string(tail) == string(suffix), nil
}
