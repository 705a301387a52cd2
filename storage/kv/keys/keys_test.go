package keys_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/skv/storage/kv/keys"
)

func TestInc(t *testing.T) {
	testCases := map[string]struct {
		key    keys.Key
		result keys.Key
	}{
		"empty": {
			key:    keys.Key{},
			result: nil,
		},
		"simple": {
			key:    keys.Key{0x04, 0x05},
			result: keys.Key{0x04, 0x06},
		},
		"carry": {
			key:    keys.Key{0x04, 0xff},
			result: keys.Key{0x05},
		},
		"all-ff": {
			key:    keys.Key{0xff, 0xff},
			result: nil,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			original := append(keys.Key{}, testCase.key...)

			if diff := cmp.Diff(testCase.result, keys.Inc(testCase.key)); diff != "" {
				t.Fatal(diff)
			}

			if diff := cmp.Diff(original, testCase.key); diff != "" {
				t.Fatalf("Inc modified its input: %s", diff)
			}
		})
	}
}

func TestRange(t *testing.T) {
	testCases := map[string]struct {
		keyRange keys.Range
		in       []keys.Key
		out      []keys.Key
	}{
		"all": {
			keyRange: keys.All(),
			in:       []keys.Key{{}, {0x00}, {0xff, 0xff}},
		},
		"gte-lt": {
			keyRange: keys.All().Gte(keys.Key("b")).Lt(keys.Key("d")),
			in:       []keys.Key{keys.Key("b"), keys.Key("c"), keys.Key("czzz")},
			out:      []keys.Key{keys.Key("a"), keys.Key("d"), keys.Key("da")},
		},
		"gt-lte": {
			keyRange: keys.All().Gt(keys.Key("b")).Lte(keys.Key("d")),
			in:       []keys.Key{keys.Key("b\x00"), keys.Key("c"), keys.Key("d")},
			out:      []keys.Key{keys.Key("b"), keys.Key("d\x00")},
		},
		"eq": {
			keyRange: keys.All().Eq(keys.Key("abc")),
			in:       []keys.Key{keys.Key("abc")},
			out:      []keys.Key{keys.Key("ab"), keys.Key("abc\x00"), keys.Key("abd")},
		},
		"prefix": {
			keyRange: keys.All().Prefix(keys.Key("ab")),
			in:       []keys.Key{keys.Key("ab"), keys.Key("ab\xff"), keys.Key("abzz")},
			out:      []keys.Key{keys.Key("aa"), keys.Key("ac")},
		},
		"prefix-all-ff": {
			keyRange: keys.All().Prefix(keys.Key{0xff}),
			in:       []keys.Key{{0xff}, {0xff, 0xff, 0x01}},
			out:      []keys.Key{{0xfe}},
		},
		"most-restrictive-wins": {
			keyRange: keys.All().Gte(keys.Key("b")).Gte(keys.Key("a")).Lt(keys.Key("y")).Lt(keys.Key("z")),
			in:       []keys.Key{keys.Key("b"), keys.Key("x")},
			out:      []keys.Key{keys.Key("a"), keys.Key("y")},
		},
		"namespace": {
			keyRange: keys.All().Namespace(keys.Key("ns")),
			in:       []keys.Key{keys.Key("ns\x00"), keys.Key("nsa")},
			out:      []keys.Key{keys.Key("nr"), keys.Key("ns"), keys.Key("nt")},
		},
		"namespace-refined": {
			keyRange: keys.All().Namespace(keys.Key("ns")).Gte(keys.Key("b")).Lt(keys.Key("d")),
			in:       []keys.Key{keys.Key("nsb"), keys.Key("nsc")},
			out:      []keys.Key{keys.Key("b"), keys.Key("nsa"), keys.Key("nsd"), keys.Key("ot")},
		},
		"namespace-of-bounded": {
			keyRange: keys.All().Gte(keys.Key("b")).Lt(keys.Key("d")).Namespace(keys.Key("ns")),
			in:       []keys.Key{keys.Key("nsb"), keys.Key("nsc")},
			out:      []keys.Key{keys.Key("nsa"), keys.Key("nsd")},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			for _, k := range testCase.in {
				if !testCase.keyRange.Contains(k) {
					t.Errorf("expected range %#v to contain %q", testCase.keyRange, k)
				}
			}

			for _, k := range testCase.out {
				if testCase.keyRange.Contains(k) {
					t.Errorf("expected range %#v not to contain %q", testCase.keyRange, k)
				}
			}
		})
	}
}

func TestOverlaps(t *testing.T) {
	testCases := map[string]struct {
		a      keys.Range
		b      keys.Range
		result bool
	}{
		"all-all": {
			a:      keys.All(),
			b:      keys.All(),
			result: true,
		},
		"disjoint": {
			a:      keys.All().Lt(keys.Key("c")),
			b:      keys.All().Gte(keys.Key("c")),
			result: false,
		},
		"touching-inside": {
			a:      keys.All().Lt(keys.Key("c\x00")),
			b:      keys.All().Gte(keys.Key("c")),
			result: true,
		},
		"point-inside": {
			a:      keys.All().Gte(keys.Key("a")).Lt(keys.Key("z")),
			b:      keys.All().Eq(keys.Key("m")),
			result: true,
		},
		"empty": {
			a:      keys.All().Gte(keys.Key("z")).Lt(keys.Key("a")),
			b:      keys.All(),
			result: false,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			if testCase.a.Overlaps(testCase.b) != testCase.result || testCase.b.Overlaps(testCase.a) != testCase.result {
				t.Fatalf("expected Overlaps to be %v", testCase.result)
			}
		})
	}
}
