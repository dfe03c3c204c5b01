package curate

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tendant/simple-curator/pkg/schema"
)

const ManifestName = "manifest.jsonl"

var doneMarker = regexp.MustCompile(`total\s+(\d+)\s+saved`)

// ImageName is the file name of the n-th kept image, counting from 1.
func ImageName(n int) string {
	return fmt.Sprintf("img_%04d.jpg", n)
}

// DoneMarker is the final stdout line of a collect run.
func DoneMarker(kept int, outDir string) string {
	return fmt.Sprintf("[done] total %d saved: %s", kept, outDir)
}

// ParseDoneMarker finds the kept count in collect output.
func ParseDoneMarker(stdout string) (int, bool) {
	m := doneMarker.FindAllStringSubmatch(stdout, -1)
	if len(m) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(m[len(m)-1][1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// WriteManifest replaces dir/manifest.jsonl with one JSON line per entry.
func WriteManifest(dir string, entries []schema.ManifestEntry) error {
	w, err := CreateManifest(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.Append(e); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

// ManifestWriter appends manifest lines as images are saved, so a run that
// dies mid-save still leaves a manifest naming every file it wrote.
type ManifestWriter struct {
	f   *os.File
	enc *json.Encoder
}

// CreateManifest truncates dir/manifest.jsonl and opens it for appending.
func CreateManifest(dir string) (*ManifestWriter, error) {
	f, err := os.OpenFile(filepath.Join(dir, ManifestName), os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create manifest: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &ManifestWriter{f: f, enc: enc}, nil
}

// Append writes one entry. The file is unbuffered; the line is on disk once
// Append returns.
func (w *ManifestWriter) Append(e schema.ManifestEntry) error {
	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("append manifest entry: %w", err)
	}
	return nil
}

func (w *ManifestWriter) Close() error {
	return w.f.Close()
}

// ReadManifest returns the entries in dir/manifest.jsonl. Malformed lines are
// skipped.
func ReadManifest(dir string) ([]schema.ManifestEntry, error) {
	f, err := os.Open(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []schema.ManifestEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e schema.ManifestEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// CountManifest reports the number of entries in dir/manifest.jsonl. ok is
// false when there is no manifest.
func CountManifest(dir string) (n int, ok bool, err error) {
	entries, err := ReadManifest(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return len(entries), true, nil
}
