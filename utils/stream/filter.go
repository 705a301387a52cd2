package stream

// Filter drops every element for which keep returns false
func Filter[T any](keep func(value T) bool) Processor[T] {
	return func(stream Stream[T]) Stream[T] {
		return &filteredStream[T]{Stream: stream, keep: keep}
	}
}

type filteredStream[T any] struct {
	Stream[T]
	keep func(value T) bool
}

func (stream *filteredStream[T]) Next() bool {
	for stream.Stream.Next() {
		if stream.keep(stream.Value()) {
			return true
		}
	}

	return false
}
