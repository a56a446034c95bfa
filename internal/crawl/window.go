package crawl

import "fmt"

// Window is the inclusive identifier range [Start, End] of one batch.
type Window struct {
	Start int
	End   int
}

func (w Window) Len() int {
	if w.End < w.Start {
		return 0
	}
	return w.End - w.Start + 1
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d]", w.Start, w.End)
}

// Partition is the share of a window handed to the worker with index Worker.
type Partition struct {
	Worker int
	Window
}

// Windows cuts [start, end] into consecutive windows of size identifiers, the last
// window may be shorter. It returns nil when start > end.
func Windows(start, end, size int) []Window {
	if size < 1 || start > end {
		return nil
	}
	var out []Window
	for s := start; s <= end; s += size {
		e := s + size - 1
		if e > end || e < s {
			e = end
		}
		out = append(out, Window{Start: s, End: e})
	}
	return out
}

// Split divides w into n contiguous partitions of len(w)/n identifiers, the last one
// absorbing the remainder. n is capped at the window length so no partition is empty.
func Split(w Window, n int) []Partition {
	length := w.Len()
	if length == 0 || n < 1 {
		return nil
	}
	if n > length {
		n = length
	}
	size := length / n
	out := make([]Partition, n)
	start := w.Start
	for i := range n {
		end := start + size - 1
		if i == n-1 {
			end = w.End
		}
		out[i] = Partition{Worker: i, Window: Window{Start: start, End: end}}
		start = end + 1
	}
	return out
}
