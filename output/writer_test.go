package output

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2025, 3, 7, 14, 5, 9, 0, time.Local)

func fixedWriter(dir string) *Writer {
	w := NewWriter(dir)
	w.Now = func() time.Time { return fixed }
	return w
}

func TestStem(t *testing.T) {
	assert.Equal(t, "method_20250307140509", Stem(fixed))
	assert.Regexp(t, regexp.MustCompile(`^method_\d{14}$`), Stem(time.Now()))
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	a, err := fixedWriter(dir).Write(context.Background(), "0b7c1f2e-aaaa-bbbb-cccc-000000000000", Files{
		JSON: []byte("{}\n"),
		HTML: []byte("<html></html>"),
	})
	require.NoError(t, err)

	assert.Equal(t, "method_20250307140509", a.Stem)
	assert.Equal(t, filepath.Join(dir, "method_20250307140509.json"), a.JSON)
	assert.Equal(t, filepath.Join(dir, "method_20250307140509.html"), a.HTML)
	assert.Empty(t, a.XLSX)

	data, err := os.ReadFile(a.JSON)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "method_20250307140509.xlsx"))
}

func TestWriteCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	a, err := fixedWriter(dir).Write(context.Background(), "id", Files{JSON: []byte("{}")})
	require.NoError(t, err)
	assert.FileExists(t, a.JSON)
}

func TestWriteCollisionGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	w := fixedWriter(dir)
	ctx := context.Background()

	first, err := w.Write(ctx, "11111111-0000-0000-0000-000000000000", Files{JSON: []byte("1"), HTML: []byte("1")})
	require.NoError(t, err)
	second, err := w.Write(ctx, "22222222-0000-0000-0000-000000000000", Files{JSON: []byte("2"), HTML: []byte("2")})
	require.NoError(t, err)

	assert.Equal(t, "method_20250307140509", first.Stem)
	assert.Equal(t, "method_20250307140509_22222222", second.Stem)

	data, err := os.ReadFile(first.JSON)
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	_, err = w.Write(ctx, "22222222-0000-0000-0000-000000000000", Files{JSON: []byte("3")})
	require.Error(t, err)
}

func TestWriteRollsBackOnFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory where the workbook should go makes the last write fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "method_20250307140509.xlsx"), 0o755))

	_, err := fixedWriter(dir).Write(context.Background(), "id", Files{
		JSON: []byte("{}"),
		HTML: []byte("x"),
		XLSX: []byte("PK"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method_20250307140509.xlsx")
	assert.NoFileExists(t, filepath.Join(dir, "method_20250307140509.json"))
	assert.NoFileExists(t, filepath.Join(dir, "method_20250307140509.html"))
}

func TestWriteWaitsForLock(t *testing.T) {
	dir := t.TempDir()
	held := flock.New(filepath.Join(dir, lockFileName))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = fixedWriter(dir).Write(ctx, "id", Files{JSON: []byte("{}")})
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "method_20250307140509.json"))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0b7c1f2e", shortID("0b7c1f2e-aaaa"))
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "dup", shortID(""))
}
