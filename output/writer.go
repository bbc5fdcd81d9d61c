// Package output places run artifacts in the output directory.
package output

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	stampLayout  = "20060102150405"
	lockFileName = ".papergraph.lock"
	lockRetry    = 50 * time.Millisecond
)

// Files holds the rendered artifacts of one run. XLSX is optional.
type Files struct {
	JSON []byte
	HTML []byte
	XLSX []byte
}

// Artifacts holds the paths written for one run. A path is empty when the
// corresponding file was not produced.
type Artifacts struct {
	Stem string `json:"stem"`
	JSON string `json:"json"`
	HTML string `json:"html"`
	XLSX string `json:"xlsx,omitempty"`
}

// Writer writes artifacts named method_<YYYYMMDDHHMMSS>.<ext> into Dir.
type Writer struct {
	Dir string
	// Now is the clock used for file stems. Defaults to time.Now.
	Now func() time.Time
}

// NewWriter returns a writer for dir. An empty dir means the working
// directory.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "."
	}
	return &Writer{Dir: dir, Now: time.Now}
}

// Stem returns the base file name for a run started at t, in local time.
func Stem(t time.Time) string {
	return "method_" + t.Local().Format(stampLayout)
}

// Write stores files under a fresh stem. Stem allocation and the writes run
// under an exclusive lock on the directory, and no existing file is ever
// replaced: when method_<ts>.json is taken the stem gets the first eight hex
// digits of runID. If any write fails, files already written are removed.
func (w *Writer) Write(ctx context.Context, runID string, files Files) (*Artifacts, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	lock := flock.New(filepath.Join(w.Dir, lockFileName))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("acquiring output lock: %w", err)
	}
	if !locked {
		return nil, errors.New("output directory is locked")
	}
	defer func() { _ = lock.Unlock() }()

	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	stem := Stem(now())
	if w.taken(stem) {
		stem = stem + "_" + shortID(runID)
		if w.taken(stem) {
			return nil, fmt.Errorf("output stem %s already in use", stem)
		}
	}

	a := &Artifacts{Stem: stem}
	var written []string
	rollback := func() {
		for _, p := range written {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("output: rollback failed", "path", p, "error", err)
			}
		}
	}

	for _, f := range []struct {
		ext  string
		data []byte
		dst  *string
	}{
		{".json", files.JSON, &a.JSON},
		{".html", files.HTML, &a.HTML},
		{".xlsx", files.XLSX, &a.XLSX},
	} {
		if f.data == nil {
			continue
		}
		path := filepath.Join(w.Dir, stem+f.ext)
		if err := writeNew(path, f.data); err != nil {
			rollback()
			return nil, fmt.Errorf("writing %s: %w", filepath.Base(path), err)
		}
		written = append(written, path)
		*f.dst = path
	}

	slog.Info("output: artifacts written", "dir", w.Dir, "stem", stem, "files", len(written))
	return a, nil
}

func (w *Writer) taken(stem string) bool {
	_, err := os.Stat(filepath.Join(w.Dir, stem+".json"))
	return err == nil
}

// writeNew creates path exclusively and writes data to it.
func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func shortID(runID string) string {
	id := strings.ReplaceAll(runID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		id = "dup"
	}
	return id
}
