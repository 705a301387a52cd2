package composite

import (
	"github.com/jrife/skv/schema"
	"github.com/jrife/skv/storage/kv/keys"
)

// Range returns the key range [Encode(start), Encode(end)).
// An empty start leaves the range unbounded below and an
// empty end leaves it unbounded above.
func Range(s *schema.Schema, start, end []schema.FieldValue) (keys.Range, error) {
	r := keys.All()

	if len(start) > 0 {
		min, err := EncodeFor(s, start)

		if err != nil {
			return keys.Range{}, err
		}

		r = r.Gte(min)
	}

	if len(end) > 0 {
		max, err := EncodeFor(s, end)

		if err != nil {
			return keys.Range{}, err
		}

		r = r.Lt(max)
	}

	return r, nil
}
