package localturk

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingSource records reads and closes of the wrapped reader.
type trackingSource struct {
	io.Reader
	reads  int
	closed int
}

func (s *trackingSource) Read(p []byte) (int, error) {
	s.reads++
	return s.Reader.Read(p)
}

func (s *trackingSource) Close() error {
	s.closed++
	return nil
}

func collect(t *testing.T, seq func(func(Record, error) bool)) []Record {
	t.Helper()
	var out []Record
	for rec, err := range seq {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestReadRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want []Record
	}{
		{
			path: "testdata/test.csv",
			want: []Record{{"id", "First", "Last"}, {"1", "Jane", "Doe"}, {"2", "John", "Doer"}},
		},
		{
			path: "testdata/quoted.csv",
			want: []Record{{"id", "First Name", "Last,Name"}, {"1", "Jane\nDoe", "Doe"}, {"2", "John", "Doer\nQuoter"}},
		},
		{
			path: "testdata/windows.csv",
			want: []Record{{"A", "B"}, {"1", "2"}},
		},
		{
			path: "testdata/outputs.csv",
			want: []Record{
				{"image1", "image2", "line1", "line2"},
				{
					"images/0.png",
					"images/1.png",
					"Lorem ipsum dolor sit amet, consectetur adipsiscing elit.",
					"Integer vulputate augue a sem pellentesque pharetra.",
				},
			},
		},
	}
	for _, tc := range tests {
		t.Run(filepath.Base(tc.path), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, collect(t, ReadRows(tc.path)))
		})
	}
}

func TestReadRowsMissingFile(t *testing.T) {
	t.Parallel()

	var errs []error
	for rec, err := range ReadRows(filepath.Join(t.TempDir(), "missing.csv")) {
		assert.Nil(t, rec)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], fs.ErrNotExist)
}

func TestRowsSkipsEmptyLines(t *testing.T) {
	t.Parallel()

	src := &trackingSource{Reader: strings.NewReader("a,b\n\n1,2\r\n\r\n3,4")}
	rows := NewRows(src)
	got := collect(t, rows.All())
	assert.Equal(t, []Record{{"a", "b"}, {"1", "2"}, {"3", "4"}}, got)
	assert.Equal(t, 1, src.closed)
}

func TestRowsClosesAfterDone(t *testing.T) {
	t.Parallel()

	src := &trackingSource{Reader: strings.NewReader("a\nb\n")}
	rows := NewRows(src)
	for rows.Next() {
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, 1, src.closed)

	assert.False(t, rows.Next())
	require.NoError(t, rows.Close())
	assert.Equal(t, 1, src.closed, "Close after completion must not close twice")
}

func TestRowsEarlyBreakCloses(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := range 10_000 {
		fmt.Fprintf(&b, "%d,value %d\n", i, i)
	}
	src := &trackingSource{Reader: strings.NewReader(b.String())}
	rows := NewRows(src)

	n := 0
	for _, err := range rows.All() {
		require.NoError(t, err)
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, src.closed)
	// Only the first chunk of the source was consumed.
	assert.Equal(t, 1, src.reads)
	assert.False(t, rows.Next())
	assert.NoError(t, rows.Err())
}

func TestRowsCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	src := &trackingSource{Reader: strings.NewReader("a\nb\n")}
	rows := NewRows(src)
	require.True(t, rows.Next())
	assert.Equal(t, Record{"a"}, rows.Record())

	require.NoError(t, rows.Close())
	require.NoError(t, rows.Close())
	assert.Equal(t, 1, src.closed)
	assert.False(t, rows.Next())
	assert.Nil(t, rows.Record())
}

func TestRowsErrorEndsStream(t *testing.T) {
	t.Parallel()

	src := &trackingSource{Reader: strings.NewReader("a,b\n1,2\n3,\"unterminated\n")}
	rows := NewRows(src)

	var got []Record
	for rows.Next() {
		got = append(got, rows.Record())
	}
	assert.Equal(t, []Record{{"a", "b"}, {"1", "2"}}, got)

	var perr *ParseError
	require.ErrorAs(t, rows.Err(), &perr)
	assert.ErrorIs(t, perr, ErrUnterminatedQuote)
	assert.Equal(t, 1, src.closed)

	// The error sticks after Close.
	require.NoError(t, rows.Close())
	assert.False(t, rows.Next())
	assert.ErrorIs(t, rows.Err(), ErrUnterminatedQuote)
}

func TestRowsAllYieldsErrorLast(t *testing.T) {
	t.Parallel()

	rows := NewRows(io.NopCloser(strings.NewReader("a\n\"b\"c\n")))
	var recs []Record
	var errs []error
	for rec, err := range rows.All() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	assert.Equal(t, []Record{{"a"}}, recs)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrTrailingQuote)
}

func TestRowsBatchesAreBounded(t *testing.T) {
	t.Parallel()

	// Tiny records in one buffered chunk exercise the batch cap.
	input := strings.Repeat("x\n", rowsBatchSize*3+7)
	rows := NewRows(io.NopCloser(strings.NewReader(input)))
	require.True(t, rows.Next())
	assert.LessOrEqual(t, len(rows.queue)-rows.head, rowsBatchSize+1)

	n := 1
	for rows.Next() {
		n++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, rowsBatchSize*3+7, n)
}

func TestRowsLines(t *testing.T) {
	t.Parallel()

	rows := NewRows(io.NopCloser(iotest.HalfReader(strings.NewReader("h\n\"a\nb\"\n\nc\n"))))
	var lines []int
	for rows.Next() {
		lines = append(lines, rows.Line())
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int{1, 2, 5}, lines)
}
