package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oleg578/localturk"
)

func TestNormalizeValues(t *testing.T) {
	t.Parallel()

	got := NormalizeValues(localturk.NewRowObject(
		"a", "foo\nbar",
		"b", "foo\r\nbar",
		"c", "foo\rbar",
	))
	assert.Equal(t, []string{"a", "b", "c"}, got.Keys())
	for k, v := range got.Fields() {
		assert.Equal(t, "foo\nbar", v, k)
	}
}

func TestIsSupersetOf(t *testing.T) {
	t.Parallel()

	row := localturk.NewRowObject
	assert.True(t, IsSupersetOf(row(), row()))
	assert.True(t, IsSupersetOf(row("a", "1"), row("a", "1")))
	assert.True(t, IsSupersetOf(row("a", "1", "b", "2"), row("a", "1")))
	assert.False(t, IsSupersetOf(row("a", "1"), row("a", "1", "b", "2")))
	assert.False(t, IsSupersetOf(row("a", "1"), row("a", "2")))
	assert.False(t, IsSupersetOf(row("a", ""), row("b", "")))
}

func TestIsCompleted(t *testing.T) {
	t.Parallel()

	completed := []localturk.RowObject{
		localturk.NewRowObject("id", "1", "text", "two\r\nlines", "label", "Yes"),
	}
	assert.True(t, IsCompleted(localturk.NewRowObject("id", "1", "text", "two\nlines"), completed))
	assert.True(t, IsCompleted(localturk.NewRowObject("id", "1", "text", "two\rlines"), completed))
	assert.False(t, IsCompleted(localturk.NewRowObject("id", "2", "text", "two\nlines"), completed))
	assert.False(t, IsCompleted(localturk.NewRowObject("id", "1"), nil))
}

func TestNext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tasks := filepath.Join(dir, "tasks.csv")
	outputs := filepath.Join(dir, "outputs.csv")
	require.NoError(t, os.WriteFile(tasks, []byte("id,text\n1,a\n2,\"b\nc\"\n3,d\n"), 0o644))

	stats, err := Next(tasks, outputs)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NumCompleted)
	assert.Equal(t, 3, stats.NumTotal)
	require.False(t, stats.Done())
	assert.Equal(t, "1", stats.Task.Value("id"))

	require.NoError(t, localturk.AppendRow(outputs, localturk.NewRowObject("id", "1", "text", "a", "label", "x")))
	require.NoError(t, localturk.AppendRow(outputs, localturk.NewRowObject("id", "2", "text", "b\r\nc", "label", "y")))

	stats, err = Next(tasks, outputs)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NumCompleted)
	assert.Equal(t, 3, stats.NumTotal)
	assert.Equal(t, "3", stats.Task.Value("id"))

	require.NoError(t, localturk.AppendRow(outputs, localturk.NewRowObject("id", "3", "text", "d")))
	stats, err = Next(tasks, outputs)
	require.NoError(t, err)
	assert.True(t, stats.Done())
	assert.Equal(t, 3, stats.NumCompleted)
}

func TestNextErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Next(filepath.Join(dir, "missing.csv"), filepath.Join(dir, "out.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	tasks := filepath.Join(dir, "tasks.csv")
	require.NoError(t, os.WriteFile(tasks, []byte("id\n\"1\n"), 0o644))
	_, err = Next(tasks, filepath.Join(dir, "out.csv"))
	assert.ErrorIs(t, err, localturk.ErrUnterminatedQuote)
}

func TestLoadCompletedMissing(t *testing.T) {
	t.Parallel()

	rows, err := LoadCompleted(filepath.Join(t.TempDir(), "none.csv"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}
