package localturk

import (
	"io"
	"iter"
	"os"
)

// rowsBatchSize caps how many records one decode step queues ahead of the
// consumer.
const rowsBatchSize = 256

// Record is one decoded row.
type Record []string

type rowsState uint8

const (
	// rowsOpen: more input may be decoded; the queue ends with a barrier.
	rowsOpen rowsState = iota
	// rowsDraining: a done or error marker is queued behind the last records.
	rowsDraining
	// rowsErrored: the error marker was delivered and the source released.
	rowsErrored
	// rowsClosed: the stream finished or was closed; the source is released.
	rowsClosed
)

type itemKind uint8

const (
	itemRecord itemKind = iota
	itemError
	itemDone
	itemBarrier
)

type rowItem struct {
	kind   itemKind
	record Record
	line   int
	err    error
}

// Rows is a lazy, single-pass stream of records read from a file.
//
// Decoding is driven by the consumer: records are queued in batches behind a
// barrier, and reaching the barrier decodes the next batch. No goroutine is
// involved, so read-ahead never exceeds one batch. Close must be called unless
// the stream is consumed to the end; it is safe to call more than once.
type Rows struct {
	src    io.Closer
	reader *Reader
	state  rowsState

	queue []rowItem
	head  int

	record Record
	line   int
	err    error
}

// OpenRows opens path for streaming.
func OpenRows(path string) (*Rows, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewRows(f), nil
}

// NewRows streams records from src, which Rows closes when done.
func NewRows(src io.ReadCloser) *Rows {
	r := NewReader(src)
	r.SkipEmptyLines = true
	r.FieldsPerRecord = -1
	return &Rows{
		src:    src,
		reader: r,
		queue:  []rowItem{{kind: itemBarrier}},
	}
}

// Next advances to the next record. It returns false at the end of the input,
// on error, or after Close; check Err to tell them apart.
func (rs *Rows) Next() bool {
	rs.record = nil
	for rs.state == rowsOpen || rs.state == rowsDraining {
		it, ok := rs.dequeue()
		if !ok {
			// Unreachable while the queue invariant holds; end cleanly anyway.
			_ = rs.Close()
			return false
		}
		switch it.kind {
		case itemBarrier:
			rs.produce()
		case itemRecord:
			rs.record, rs.line = it.record, it.line
			return true
		case itemError:
			rs.err = it.err
			rs.state = rowsErrored
			rs.queue = nil
			_ = rs.release()
			return false
		case itemDone:
			_ = rs.Close()
			return false
		}
	}
	return false
}

// Record returns the current record.
func (rs *Rows) Record() Record {
	return rs.record
}

// Line returns the line on which the current record starts.
func (rs *Rows) Line() int {
	return rs.line
}

// Err returns the error that ended the stream, if any.
func (rs *Rows) Err() error {
	return rs.err
}

// Close releases the underlying file. Records already queued are dropped.
func (rs *Rows) Close() error {
	if rs.state != rowsErrored {
		rs.state = rowsClosed
	}
	rs.queue = nil
	rs.head = 0
	return rs.release()
}

// All returns the remaining records as an iterator. A decode error is yielded
// once as the last element. The stream is closed when iteration stops.
func (rs *Rows) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		defer func() {
			_ = rs.Close()
		}()
		for rs.Next() {
			if !yield(rs.Record(), nil) {
				return
			}
		}
		if err := rs.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// produce decodes one batch: the records available from the bytes of the last
// source read, up to rowsBatchSize. It queues them followed by a new barrier,
// or by a terminal marker once the input is exhausted or malformed.
func (rs *Rows) produce() {
	for range rowsBatchSize {
		rec, err := rs.reader.Read()
		if err == io.EOF {
			rs.push(rowItem{kind: itemDone})
			rs.state = rowsDraining
			return
		}
		if err != nil {
			rs.push(rowItem{kind: itemError, err: err})
			rs.state = rowsDraining
			return
		}
		rs.push(rowItem{kind: itemRecord, record: Record(rec), line: rs.reader.RecordLine()})
		if rs.reader.Buffered() == 0 {
			break
		}
	}
	rs.push(rowItem{kind: itemBarrier})
}

func (rs *Rows) push(it rowItem) {
	rs.queue = append(rs.queue, it)
}

func (rs *Rows) dequeue() (rowItem, bool) {
	if rs.head >= len(rs.queue) {
		return rowItem{}, false
	}
	it := rs.queue[rs.head]
	rs.queue[rs.head] = rowItem{}
	rs.head++
	if rs.head == len(rs.queue) {
		rs.queue = rs.queue[:0]
		rs.head = 0
	}
	return it, true
}

func (rs *Rows) release() error {
	if rs.src == nil {
		return nil
	}
	err := rs.src.Close()
	rs.src = nil
	return err
}

// ReadRows streams the records of the file at path. Failing to open the file
// is reported as the first and only element.
func ReadRows(path string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		rows, err := OpenRows(path)
		if err != nil {
			yield(nil, err)
			return
		}
		rows.All()(yield)
	}
}
