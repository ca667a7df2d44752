package localturk

import (
	"iter"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// RowObject maps column names to values in column order.
//
// Its JSON encoding is an object whose keys keep that order.
type RowObject struct {
	*orderedmap.OrderedMap[string, string]
}

// NewRowObject returns a RowObject holding the given key, value pairs in
// order. A trailing key without a value maps to "".
func NewRowObject(pairs ...string) RowObject {
	obj := RowObject{orderedmap.New[string, string]()}
	for i := 0; i < len(pairs); i += 2 {
		v := ""
		if i+1 < len(pairs) {
			v = pairs[i+1]
		}
		obj.Set(pairs[i], v)
	}
	return obj
}

// Value returns the value for key, or "" when absent.
func (o RowObject) Value(key string) string {
	if o.OrderedMap == nil {
		return ""
	}
	v, _ := o.Get(key)
	return v
}

// Has reports whether key is present.
func (o RowObject) Has(key string) bool {
	if o.OrderedMap == nil {
		return false
	}
	_, ok := o.Get(key)
	return ok
}

// Len returns the number of columns.
func (o RowObject) Len() int {
	if o.OrderedMap == nil {
		return 0
	}
	return o.OrderedMap.Len()
}

// Keys returns the column names in order.
func (o RowObject) Keys() []string {
	keys := make([]string, 0, o.Len())
	for k := range o.Fields() {
		keys = append(keys, k)
	}
	return keys
}

// Fields iterates over column, value pairs in order.
func (o RowObject) Fields() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if o.OrderedMap == nil {
			return
		}
		for p := o.Oldest(); p != nil; p = p.Next() {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// Values returns the values for columns, "" for the ones absent from o.
func (o RowObject) Values(columns []string) Record {
	rec := make(Record, len(columns))
	for i, c := range columns {
		rec[i] = o.Value(c)
	}
	return rec
}

// project zips rec with header. Short records are padded with empty values;
// records longer than the header are rejected since their extra fields would
// have no column. With duplicate column names the last value wins.
func project(header, rec Record, line int) (RowObject, error) {
	if len(rec) > len(header) {
		return RowObject{}, &ParseError{Line: line, Column: 1, Err: ErrFieldCount}
	}
	obj := NewRowObject()
	for i, name := range header {
		v := ""
		if i < len(rec) {
			v = rec[i]
		}
		obj.Set(name, v)
	}
	return obj, nil
}

// ReadRowObjects streams the rows after the header of the file at path as
// RowObjects. Iteration stops after the first error.
func ReadRowObjects(path string) iter.Seq2[RowObject, error] {
	return func(yield func(RowObject, error) bool) {
		rows, err := OpenRows(path)
		if err != nil {
			yield(RowObject{}, err)
			return
		}
		defer func() {
			_ = rows.Close()
		}()

		var header Record
		for rows.Next() {
			if header == nil {
				header = rows.Record()
				continue
			}
			obj, err := project(header, rows.Record(), rows.Line())
			if !yield(obj, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(RowObject{}, err)
		}
	}
}

// ReadAllRowObjects reads every row after the header of the file at path.
func ReadAllRowObjects(path string) ([]RowObject, error) {
	var out []RowObject
	for obj, err := range ReadRowObjects(path) {
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}
