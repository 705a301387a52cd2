package stream

import "go.uber.org/zap"

// Log logs values at debug level as they pass through.
func Log[T any](logger *zap.Logger, msg string) Processor[T] {
	if logger == nil || !logger.Core().Enabled(zap.DebugLevel) {
		return nil
	}

	return func(stream Stream[T]) Stream[T] {
		return &loggedStream[T]{Stream: stream, logger: logger, msg: msg}
	}
}

type loggedStream[T any] struct {
	Stream[T]
	logger *zap.Logger
	msg    string
}

func (stream *loggedStream[T]) Next() bool {
	if !stream.Stream.Next() {
		return false
	}

	stream.logger.Debug(stream.msg, zap.Any("value", stream.Value()))

	return true
}
