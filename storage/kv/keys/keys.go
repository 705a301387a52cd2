package keys

import (
	"bytes"
)

// Key is a single key
type Key []byte

// Compare compares two keys
// -1 means a < b
// 1 means a > b
// 0 means a = b
func Compare(a, b Key) int {
	return bytes.Compare(a, b)
}

// Inc treats the key as a big-endian unsigned integer
// and returns a new key equal to key + 1 with any trailing
// overflowed bytes truncated. The result is the smallest key
// greater than every key that has key as a prefix. It returns
// nil if no such key exists (every byte is 0xff).
func Inc(key Key) Key {
	after := make(Key, len(key))

	copy(after, key)

	for i := len(after) - 1; i >= 0; i-- {
		if after[i] < 0xff {
			after[i]++

			return after[:i+1]
		}
	}

	// Every byte was 0xff. There is no upper
	// bound short of the end of the key space.
	return nil
}

// After returns the key directly after key such that
// there can exist no other key between key and After(key)
func After(key Key) Key {
	after := make(Key, len(key)+1)

	copy(after, key)

	return after
}

// Concat returns a new key made of the parts in order
func Concat(parts ...[]byte) Key {
	size := 0

	for _, part := range parts {
		size += len(part)
	}

	key := make(Key, 0, size)

	for _, part := range parts {
		key = append(key, part...)
	}

	return key
}

// HasPrefix returns true if key begins with prefix
func HasPrefix(key Key, prefix Key) bool {
	return bytes.HasPrefix(key, prefix)
}
