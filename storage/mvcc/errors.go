package mvcc

import (
	"errors"
	"fmt"

	"github.com/jrife/skv/storage/kv"
)

var (
	// ErrClosed indicates that the store was closed
	ErrClosed = errors.New("store was closed")
	// ErrTimestampTooLow is returned when a batch is applied with a
	// timestamp that is not higher than the newest applied timestamp
	ErrTimestampTooLow = errors.New("timestamp is not higher than the newest committed timestamp")
	// ErrCorrupt is returned when stored bytes cannot be decoded
	ErrCorrupt = errors.New("stored data is corrupt")
)

func wrapError(wrap string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kv.ErrClosed):
		return ErrClosed
	case errors.Is(err, ErrClosed):
		return err
	}

	return fmt.Errorf("%s: %w", wrap, err)
}
