package stream_test

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/skv/utils/stream"
)

func ints(n int) stream.Stream[int] {
	return &randomIntStream{n: n}
}

type randomIntStream struct {
	n int
	v int
}

func (s *randomIntStream) Next() bool {
	if s.n > 0 {
		s.n--
		s.v = rand.Intn(2000) - 1000

		return true
	}

	return false
}

func (s *randomIntStream) Value() int {
	return s.v
}

func (s *randomIntStream) Error() error {
	return nil
}

func record(record *[]int) stream.Processor[int] {
	*record = []int{}

	return func(s stream.Stream[int]) stream.Stream[int] {
		return &streamRecorder{s, record}
	}
}

type streamRecorder struct {
	stream.Stream[int]
	record *[]int
}

func (s *streamRecorder) Next() bool {
	if !s.Stream.Next() {
		return false
	}

	*s.record = append(*s.record, s.Value())

	return true
}

type failingStream struct {
	stream.Stream[int]
	err error
}

func (s *failingStream) Next() bool {
	if s.Stream.Next() {
		return true
	}

	return false
}

func (s *failingStream) Error() error {
	return s.err
}

func Drain(s stream.Stream[int]) {
	for s.Next() {
	}
}

func Filter(ints []int, filter func(a int) bool) []int {
	filteredInts := []int{}

	for _, i := range ints {
		if filter(i) {
			filteredInts = append(filteredInts, i)
		}
	}

	return filteredInts
}

func Limit(ints []int, limit int) []int {
	if limit <= 0 || limit > len(ints) {
		return ints
	}

	return ints[:limit]
}

func compare(a, b int) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}

	return 0
}

func TestFilterLimit(t *testing.T) {
	positive := func(a int) bool { return a > 0 }
	input := []int{}
	output := []int{}

	Drain(stream.Pipeline(ints(1000), record(&input), stream.Filter(positive), stream.Limit[int](10), record(&output)))

	if diff := cmp.Diff(Limit(Filter(input, positive), 10), output); diff != "" {
		t.Fatal(diff)
	}

	Drain(stream.Pipeline(ints(1000), record(&input), stream.Filter(positive), stream.Limit[int](0), record(&output)))

	if diff := cmp.Diff(Filter(input, positive), output); diff != "" {
		t.Fatal(diff)
	}
}

func TestLimitStopsSource(t *testing.T) {
	input := []int{}

	Drain(stream.Pipeline(ints(100), record(&input), stream.Limit[int](3)))

	if len(input) != 3 {
		t.Fatalf("expected source to be advanced 3 times, got %d", len(input))
	}
}

func TestMerge(t *testing.T) {
	testCases := map[string]struct {
		base    []int
		overlay []int
		reverse bool
		result  []int
	}{
		"both-empty": {
			base:    []int{},
			overlay: []int{},
			result:  []int{},
		},
		"base-only": {
			base:    []int{1, 2, 3},
			overlay: []int{},
			result:  []int{1, 2, 3},
		},
		"overlay-only": {
			base:    []int{},
			overlay: []int{4, 5},
			result:  []int{4, 5},
		},
		"interleaved": {
			base:    []int{1, 3, 5, 7},
			overlay: []int{2, 3, 8},
			result:  []int{1, 2, 3, 5, 7, 8},
		},
		"descending": {
			base:    []int{7, 5, 3, 1},
			overlay: []int{8, 3, 2},
			reverse: true,
			result:  []int{8, 7, 5, 3, 2, 1},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			cmpFn := compare

			if testCase.reverse {
				cmpFn = func(a, b int) int { return -compare(a, b) }
			}

			result, err := stream.Collect(stream.Pipeline(stream.FromSlice(testCase.base), stream.Merge(stream.FromSlice(testCase.overlay), cmpFn)))

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if diff := cmp.Diff(testCase.result, result); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestMergeOverlayWins(t *testing.T) {
	type kv struct {
		K int
		V string
	}

	base := stream.FromSlice([]kv{{1, "base"}, {2, "base"}})
	overlay := stream.FromSlice([]kv{{2, "overlay"}})

	result, err := stream.Collect(stream.Pipeline(base, stream.Merge(overlay, func(a, b kv) int { return compare(a.K, b.K) })))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff([]kv{{1, "base"}, {2, "overlay"}}, result); diff != "" {
		t.Fatal(diff)
	}
}

func TestMergeError(t *testing.T) {
	errBoom := errors.New("boom")
	base := &failingStream{Stream: stream.FromSlice([]int{1}), err: errBoom}

	_, err := stream.Collect(stream.Pipeline[int](base, stream.Merge(stream.FromSlice([]int{2}), compare)))

	if !errors.Is(err, errBoom) {
		t.Fatalf("expected %v, got %#v", errBoom, err)
	}
}

func TestCollectOrder(t *testing.T) {
	values := []int{5, 1, 4}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	result, err := stream.Collect(stream.FromSlice(sorted))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(sorted, result); diff != "" {
		t.Fatal(diff)
	}
}
