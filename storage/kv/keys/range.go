package keys

// All returns a new key range matching all keys
func All() Range {
	return Range{}
}

// Range represents all keys such that
//
//	k >= Min and k < Max
//
// If Min = nil that indicates the start of all keys
// If Max = nil that indicates the end of all keys
// If multiple modifiers are called on a range the end
// result is effectively the same as ANDing all the
// restrictions.
type Range struct {
	Min Key
	Max Key
	ns  Key
}

// Eq confines the range to just key k
func (r Range) Eq(k Key) Range {
	return r.Gte(k).Lte(k)
}

// Gt confines the range to keys that are
// greater than k
func (r Range) Gt(k Key) Range {
	return r.refineMin(After(k))
}

// Gte confines the range to keys that are
// greater than or equal to k
func (r Range) Gte(k Key) Range {
	return r.refineMin(k)
}

// Lt confines the range to keys that are
// less than k
func (r Range) Lt(k Key) Range {
	return r.refineMax(k)
}

// Lte confines the range to keys that are
// less than or equal to k
func (r Range) Lte(k Key) Range {
	return r.refineMax(After(k))
}

// Prefix confines the range to keys that
// have the prefix k, including k itself
func (r Range) Prefix(k Key) Range {
	r = r.Gte(k)

	if upper := Inc(k); upper != nil {
		r = r.Lt(upper)
	}

	return r
}

// Namespace maps the range into the part of the key space
// whose keys begin with ns. Subsequent modifier methods take
// keys relative to ns and keep the range within it. ns itself
// is excluded since it stands for the empty key.
func (r Range) Namespace(ns Key) Range {
	namespaced := Range{ns: Concat(r.ns, ns)}

	if len(r.Min) == 0 && len(namespaced.ns) > 0 {
		namespaced.Min = After(namespaced.ns)
	} else {
		namespaced.Min = Concat(namespaced.ns, r.Min)
	}

	if r.Max != nil {
		namespaced.Max = Concat(namespaced.ns, r.Max)
	} else {
		namespaced.Max = Inc(namespaced.ns)
	}

	return namespaced
}

// Contains returns true if k lies within the range
func (r Range) Contains(k Key) bool {
	if r.Min != nil && Compare(k, r.Min) < 0 {
		return false
	}

	if r.Max != nil && Compare(k, r.Max) >= 0 {
		return false
	}

	return true
}

// Overlaps returns true if some key could lie in both ranges
func (r Range) Overlaps(other Range) bool {
	if r.Empty() || other.Empty() {
		return false
	}

	if r.Max != nil && other.Min != nil && Compare(other.Min, r.Max) >= 0 {
		return false
	}

	if other.Max != nil && r.Min != nil && Compare(r.Min, other.Max) >= 0 {
		return false
	}

	return true
}

// Empty returns true if no key can satisfy the range
func (r Range) Empty() bool {
	return r.Min != nil && r.Max != nil && Compare(r.Min, r.Max) >= 0
}

func (r Range) refineMin(min Key) Range {
	if len(r.ns) > 0 {
		min = Concat(r.ns, min)
	}

	if r.Min != nil && Compare(min, r.Min) <= 0 {
		return r
	}

	r.Min = min

	return r
}

func (r Range) refineMax(max Key) Range {
	if len(r.ns) > 0 {
		max = Concat(r.ns, max)
	}

	if r.Max != nil && Compare(max, r.Max) >= 0 {
		return r
	}

	r.Max = max

	return r
}
