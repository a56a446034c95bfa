package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"esaj-crawler/internal/model"
)

var batchFileRegex = regexp.MustCompile(`^processos_(\d+)_(\d+)\.json$`)

// BatchFiles is the directory holding one json array of case records per batch.
type BatchFiles struct {
	dir string
}

func NewBatchFiles(dir string) BatchFiles {
	return BatchFiles{dir: dir}
}

func (b BatchFiles) Dir() string {
	return b.dir
}

func (b BatchFiles) Path(start, end int) string {
	return filepath.Join(b.dir, fmt.Sprintf("processos_%d_%d.json", start, end))
}

// Write replaces the batch file of [start, end] with recs.
func (b BatchFiles) Write(start, end int, recs []model.CaseRecord) (string, error) {
	if recs == nil {
		recs = []model.CaseRecord{}
	}
	err := os.MkdirAll(b.dir, 0755)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	path := b.Path(start, end)
	tmp, err := os.CreateTemp(b.dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	err = enc.Encode(recs)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: encode batch: %w", model.ErrPersistence, err)
	}
	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	return path, nil
}

// List returns every json file in the directory, sorted by name.
func (b BatchFiles) List() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(b.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

func (b BatchFiles) Read(path string) ([]model.CaseRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recs []model.CaseRecord
	err = json.Unmarshal(content, &recs)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return recs, nil
}

type batchBounds struct {
	start, end int
}

// LastCompletedIn returns the end of the contiguous run of batch files that starts at
// start and stays inside [start, end]. ok is false when no such run exists.
func (b BatchFiles) LastCompletedIn(start, end int) (last int, ok bool, err error) {
	entries, err := os.ReadDir(b.dir)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var batches []batchBounds
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := batchFileRegex.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		s, err1 := strconv.Atoi(match[1])
		n, err2 := strconv.Atoi(match[2])
		if err1 != nil || err2 != nil || s > n || s < start || n > end {
			continue
		}
		batches = append(batches, batchBounds{start: s, end: n})
	}
	slices.SortFunc(batches, func(a, b batchBounds) int {
		return a.start - b.start
	})

	next := start
	for _, batch := range batches {
		if batch.start != next {
			if batch.start < next {
				// overlapping rerun of an earlier range
				continue
			}
			break
		}
		last, ok = batch.end, true
		next = batch.end + 1
	}
	return last, ok, nil
}
