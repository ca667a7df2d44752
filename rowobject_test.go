package localturk

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRowObject(t *testing.T) {
	t.Parallel()

	obj := NewRowObject("b", "1", "a", "2", "c")
	assert.Equal(t, []string{"b", "a", "c"}, obj.Keys())
	assert.Equal(t, "1", obj.Value("b"))
	assert.Equal(t, "", obj.Value("c"))
	assert.True(t, obj.Has("c"))
	assert.False(t, obj.Has("d"))
	assert.Equal(t, 3, obj.Len())
	assert.Equal(t, Record{"2", "", "1", ""}, obj.Values([]string{"a", "missing", "b", "c"}))
}

func TestRowObjectZeroValue(t *testing.T) {
	t.Parallel()

	var obj RowObject
	assert.Equal(t, 0, obj.Len())
	assert.Empty(t, obj.Keys())
	assert.Equal(t, "", obj.Value("a"))
	assert.False(t, obj.Has("a"))
	assert.Equal(t, Record{""}, obj.Values([]string{"a"}))
}

func TestRowObjectJSONKeepsOrder(t *testing.T) {
	t.Parallel()

	obj := NewRowObject("z", "1", "a", "<2>")
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.JSONEq(t, `{"z":"1","a":"<2>"}`, string(data))
	assert.Less(t, strings.Index(string(data), `"z"`), strings.Index(string(data), `"a"`))
}

func TestProject(t *testing.T) {
	t.Parallel()

	header := Record{"a", "b", "c"}

	obj, err := project(header, Record{"1", "2", "3"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, obj.Keys())
	assert.Equal(t, "3", obj.Value("c"))

	obj, err = project(header, Record{"1"}, 2)
	require.NoError(t, err)
	assert.Equal(t, Record{"1", "", ""}, obj.Values(header))

	_, err = project(header, Record{"1", "2", "3", "4"}, 7)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrFieldCount)
	assert.Equal(t, 7, perr.Line)

	obj, err = project(Record{"a", "a"}, Record{"1", "2"}, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, obj.Len())
	assert.Equal(t, "2", obj.Value("a"))
}

func TestReadRowObjects(t *testing.T) {
	t.Parallel()

	objs, err := ReadAllRowObjects("testdata/quoted.csv")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, []string{"id", "First Name", "Last,Name"}, objs[0].Keys())
	assert.Equal(t, "Jane\nDoe", objs[0].Value("First Name"))
	assert.Equal(t, "Doer\nQuoter", objs[1].Value("Last,Name"))
}

func TestReadRowObjectsEdgeCases(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	objs, err := ReadAllRowObjects(write("empty.csv", ""))
	require.NoError(t, err)
	assert.Empty(t, objs)

	objs, err = ReadAllRowObjects(write("header.csv", "a,b\n"))
	require.NoError(t, err)
	assert.Empty(t, objs)

	objs, err = ReadAllRowObjects(write("short.csv", "a,b,c\n1\n"))
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, Record{"1", "", ""}, objs[0].Values([]string{"a", "b", "c"}))

	_, err = ReadAllRowObjects(write("long.csv", "a,b\n1,2\n1,2,3\n"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrFieldCount)
	assert.Equal(t, 3, perr.Line)

	_, err = ReadAllRowObjects(filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadRowObjectsEarlyBreak(t *testing.T) {
	t.Parallel()

	n := 0
	for obj, err := range ReadRowObjects("testdata/test.csv") {
		require.NoError(t, err)
		assert.Equal(t, "1", obj.Value("id"))
		n++
		break
	}
	assert.Equal(t, 1, n)
}
