package stream

// Merge combines two streams that are each already ordered
// by compare into one ordered stream. When both streams hold
// an element that compares equal the element from overlay wins
// and the base element is dropped. compare must already account
// for the direction of traversal.
func Merge[T any](overlay Stream[T], compare func(a, b T) int) Processor[T] {
	return func(base Stream[T]) Stream[T] {
		return &mergedStream[T]{base: base, overlay: overlay, compare: compare}
	}
}

type mergedStream[T any] struct {
	base      Stream[T]
	overlay   Stream[T]
	compare   func(a, b T) int
	started   bool
	baseOK    bool
	overlayOK bool
	current   T
	err       error
}

func (stream *mergedStream[T]) Next() bool {
	if stream.err != nil {
		return false
	}

	if !stream.started {
		stream.started = true
		stream.baseOK = stream.advance(stream.base)
		stream.overlayOK = stream.advance(stream.overlay)

		if stream.err != nil {
			return false
		}
	}

	switch {
	case !stream.baseOK && !stream.overlayOK:
		var zero T
		stream.current = zero

		return false
	case !stream.overlayOK:
		stream.current = stream.base.Value()
		stream.baseOK = stream.advance(stream.base)
	case !stream.baseOK:
		stream.current = stream.overlay.Value()
		stream.overlayOK = stream.advance(stream.overlay)
	default:
		c := stream.compare(stream.base.Value(), stream.overlay.Value())

		if c < 0 {
			stream.current = stream.base.Value()
			stream.baseOK = stream.advance(stream.base)
		} else {
			if c == 0 {
				stream.baseOK = stream.advance(stream.base)
			}

			stream.current = stream.overlay.Value()
			stream.overlayOK = stream.advance(stream.overlay)
		}
	}

	return stream.err == nil
}

func (stream *mergedStream[T]) advance(s Stream[T]) bool {
	if s.Next() {
		return true
	}

	if s.Error() != nil && stream.err == nil {
		stream.err = s.Error()
	}

	return false
}

func (stream *mergedStream[T]) Value() T {
	return stream.current
}

func (stream *mergedStream[T]) Error() error {
	return stream.err
}
