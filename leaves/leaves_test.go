package leaves

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"a", "A"},
		{"qu", "QU"},
		{"ZEA", "AEZ"},
		{"eaz", "AEZ"},
		{"?ab", "?AB"},
		{"ssE", "ESS"},
		{"ß", "SS"},
		{"ﬁ", "FI"},
		{"eßa", "AESS"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalKey(tt.in), "CanonicalKey(%q)", tt.in)
	}
}

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"ab,1.5",
		"ba,2.5", // same key as ab, replaces it
		"Q,-7",
		"z,notanumber",
		"only-one-column",
		"x,1,2",
		"ERS, 3.25",
	}, "\n")

	table, summary, err := Parse(strings.NewReader(input), ParseOptions{Logger: quietLogger})
	require.NoError(t, err)

	assert.Equal(t, 7, summary.Rows)
	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 3, summary.Loaded)

	v, ok := table.Get("BA")
	require.True(t, ok)
	assert.Equal(t, 2.5, v)

	v, ok = table.Get("q")
	require.True(t, ok)
	assert.Equal(t, -7.0, v)

	v, ok = table.Get("sre")
	require.True(t, ok)
	assert.Equal(t, 3.25, v)

	_, ok = table.Get("z")
	assert.False(t, ok)
}

func TestParseFileMissing(t *testing.T) {
	_, _, err := ParseFile(filepath.Join(t.TempDir(), "missing.csv"), ParseOptions{Logger: quietLogger})
	assert.ErrorIs(t, err, ErrMissingInput)
}

func testTable() Table {
	return Table{
		CanonicalKey("ers"):    3.25,
		CanonicalKey("q"):      -7,
		CanonicalKey("blank"):  0,
		CanonicalKey("?s"):     20.5,
		CanonicalKey("aeinst"): 31,
	}
}

func TestSaveLoad(t *testing.T) {
	table := testTable()
	filename := filepath.Join(t.TempDir(), "test.leaves")

	size, err := table.Save(filename)
	require.NoError(t, err)

	info, err := os.Stat(filename)
	require.NoError(t, err)
	assert.Equal(t, size, info.Size())

	loaded, err := Load(filename)
	require.NoError(t, err)
	defer loaded.Close()

	assert.Equal(t, len(table), loaded.Len())
	for key, want := range table {
		got, ok := loaded.Get(key)
		require.True(t, ok, "key %q", key)
		assert.Equal(t, want, got, "key %q", key)
	}

	got, ok := loaded.Get("tsniea")
	require.True(t, ok)
	assert.Equal(t, 31.0, got)

	for _, absent := range []string{"", "Z", "ERSS", "toolongforanykeyinthetable"} {
		_, ok := loaded.Get(absent)
		assert.False(t, ok, "key %q", absent)
	}
}

func TestEmptyTable(t *testing.T) {
	var buffer bytes.Buffer
	_, err := Table{}.Write(&buffer)
	require.NoError(t, err)

	loaded, err := Read(bytes.NewReader(buffer.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())

	_, ok := loaded.Get("A")
	assert.False(t, ok)
}

func TestReadCorrupt(t *testing.T) {
	var buffer bytes.Buffer
	_, err := testTable().Write(&buffer)
	require.NoError(t, err)
	data := buffer.Bytes()

	flipped := bytes.Clone(data)
	flipped[len(flipped)-12] ^= 0x01
	_, err = Read(bytes.NewReader(flipped))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Read(bytes.NewReader(data[:len(data)-3]))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Read(bytes.NewReader([]byte("nope")))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSaveFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "missing-dir", "test.leaves")

	_, err := testTable().Save(filename)
	require.ErrorIs(t, err, ErrSerialization)

	_, err = os.Stat(filename)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveMode(t *testing.T) {
	dir := t.TempDir()

	fresh := filepath.Join(dir, "fresh.leaves")
	_, err := testTable().Save(fresh)
	require.NoError(t, err)
	info, err := os.Stat(fresh)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	existing := filepath.Join(dir, "existing.leaves")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0600))
	require.NoError(t, os.Chmod(existing, 0640))
	_, err = testTable().Save(existing)
	require.NoError(t, err)
	info, err = os.Stat(existing)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func logRecords(t *testing.T, logs []byte, msg string) []map[string]any {
	t.Helper()
	var records []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(logs))
	for scanner.Scan() {
		var record map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		if record[slog.MessageKey] == msg {
			records = append(records, record)
		}
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestParseLogs(t *testing.T) {
	input := strings.Join([]string{
		"ab,1.5",
		"",
		"z,notanumber",
		"q,-7",
		"only-one-column",
		"",
		"",
		"x,1,2",
		"ers,3.25",
	}, "\n")

	var buf bytes.Buffer
	_, summary, err := Parse(strings.NewReader(input), ParseOptions{
		Logger:        slog.New(slog.NewJSONHandler(&buf, nil)),
		ProgressEvery: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Rows)
	assert.Equal(t, 3, summary.Skipped)

	skipped := logRecords(t, buf.Bytes(), "skipping row")
	require.Len(t, skipped, 3)
	for i, want := range []struct{ row, line float64 }{
		{2, 3},
		{4, 5},
		{5, 8},
	} {
		assert.Equal(t, "WARN", skipped[i][slog.LevelKey])
		assert.Equal(t, want.row, skipped[i]["row"])
		assert.Equal(t, want.line, skipped[i]["line"], "row %v", want.row)
		assert.Contains(t, skipped[i]["reason"], ErrMalformedRow.Error())
	}

	progress := logRecords(t, buf.Bytes(), "processed rows")
	require.Len(t, progress, 3)
	for i, rows := range []float64{2, 4, 6} {
		assert.Equal(t, rows, progress[i]["rows"])
	}
}
