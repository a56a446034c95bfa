package crawl

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestWindows(t *testing.T) {
	cases := []struct {
		start, end, size int
		expected         []Window
	}{
		{1, 10, 5, []Window{{1, 5}, {6, 10}}},
		{1, 11, 5, []Window{{1, 5}, {6, 10}, {11, 11}}},
		{7, 7, 100, []Window{{7, 7}}},
		{3, 5, 1, []Window{{3, 3}, {4, 4}, {5, 5}}},
		{10, 9, 5, nil},
		{1, 10, 0, nil},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.expected, Windows(tc.start, tc.end, tc.size)); diff != "" {
			t.Fatal(diff)
		}
	}
}

func TestSplit(t *testing.T) {
	require.Equal(t, []Partition{
		{0, Window{1, 3}},
		{1, Window{4, 6}},
		{2, Window{7, 10}},
	}, Split(Window{1, 10}, 3))

	// never more partitions than identifiers
	require.Equal(t, []Partition{
		{0, Window{5, 5}},
		{1, Window{6, 6}},
	}, Split(Window{5, 6}, 4))

	require.Nil(t, Split(Window{5, 4}, 2))
	require.Nil(t, Split(Window{1, 4}, 0))
}

func TestSplitProperties(t *testing.T) {
	for range 2000 {
		start := rand.IntN(100000)
		w := Window{Start: start, End: start + rand.IntN(500)}
		n := 1 + rand.IntN(16)

		parts := Split(w, n)
		require.NotEmpty(t, parts)
		require.LessOrEqual(t, len(parts), n)
		require.Equal(t, w.Start, parts[0].Start)
		require.Equal(t, w.End, parts[len(parts)-1].End)

		size := w.Len() / len(parts)
		total := 0
		for i, p := range parts {
			require.Equal(t, i, p.Worker)
			require.GreaterOrEqual(t, p.Len(), 1)
			if i > 0 {
				require.Equal(t, parts[i-1].End+1, p.Start, "partitions must be contiguous")
			}
			if i < len(parts)-1 {
				require.Equal(t, size, p.Len())
			} else {
				require.Equal(t, size+w.Len()%len(parts), p.Len())
			}
			total += p.Len()
		}
		require.Equal(t, w.Len(), total)
	}
}

func TestWindowsExhaustive(t *testing.T) {
	for range 500 {
		start := rand.IntN(1000)
		end := start + rand.IntN(300)
		size := 1 + rand.IntN(50)

		next := start
		for i, w := range Windows(start, end, size) {
			require.Equal(t, next, w.Start)
			require.GreaterOrEqual(t, w.End, w.Start)
			if w.End != end {
				require.Equal(t, size, w.Len(), "window %d", i)
			}
			next = w.End + 1
		}
		require.Equal(t, end+1, next)
	}
}
