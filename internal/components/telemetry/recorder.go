package telemetry

import (
	"strings"
	"sync"
)

// Report is a single call made against a Recorder.
type Report struct {
	Level  string
	Id     string
	Params []any
}

// Recorder is an in-memory API, tests use it to assert on what was reported
// instead of scraping log output.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(level, id string, params []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Level: level, Id: id, Params: params})
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.add("broken", id, params)
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.add("warning", id, params)
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.add("debug", msg, params)
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.add("count", id, []any{count})
}

// Reports returns a copy of everything recorded so far.
func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Count returns how many reports of the given level have an id ending in `suffix`,
// scoped ids are prefixed with their namespace so a suffix match is what callers want.
func (r *Recorder) Count(level, suffix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rep := range r.reports {
		if rep.Level == level && strings.HasSuffix(rep.Id, suffix) {
			n++
		}
	}
	return n
}

// Broken is shorthand for Count("broken", suffix).
func (r *Recorder) Broken(suffix string) int {
	return r.Count("broken", suffix)
}

// Warnings is shorthand for Count("warning", suffix).
func (r *Recorder) Warnings(suffix string) int {
	return r.Count("warning", suffix)
}
