package mvcc

import (
	"encoding/binary"
	"fmt"

	"github.com/jrife/skv/storage/kv/keys"
)

var (
	metadataPrefix     = []byte{0}
	versionsPrefix     = []byte{1}
	newestTimestampKey = []byte{0}
)

const (
	kindDelete byte = 0
	kindPut    byte = 1
)

// escapeKey writes key with every 0x00 byte expanded to
// 0x00 0xff followed by 0x00 0x01. The result preserves the
// order of keys and no escaped key is a prefix of another.
func escapeKey(key []byte) []byte {
	escaped := make([]byte, 0, len(key)+2)

	for _, b := range key {
		escaped = append(escaped, b)

		if b == 0 {
			escaped = append(escaped, 0xff)
		}
	}

	return append(escaped, 0, 1)
}

// escapeBound escapes a range bound. Unlike escapeKey it leaves
// off the terminator so that the bound sorts before every version
// of the keys that have it as a prefix.
func escapeBound(bound []byte) []byte {
	escaped := escapeKey(bound)

	return escaped[:len(escaped)-2]
}

// versionKey = escapeKey(key) ‖ ^timestamp
// Newer versions of a key sort before older ones.
type versionKey []byte

func newVersionKey(key []byte, timestamp uint64) versionKey {
	escaped := escapeKey(key)
	k := make([]byte, len(escaped)+8)
	copy(k, escaped)
	binary.BigEndian.PutUint64(k[len(escaped):], ^timestamp)

	return k
}

func (k versionKey) timestamp() uint64 {
	return ^binary.BigEndian.Uint64(k[len(k)-8:])
}

// prefix returns the escaped key shared by all versions of a key
func (k versionKey) prefix() []byte {
	return k[:len(k)-8]
}

func (k versionKey) key() ([]byte, error) {
	if len(k) < 10 {
		return nil, fmt.Errorf("%w: version key is too short", ErrCorrupt)
	}

	escaped := k[:len(k)-10]
	key := make([]byte, 0, len(escaped))

	for i := 0; i < len(escaped); i++ {
		key = append(key, escaped[i])

		if escaped[i] == 0 {
			if i+1 >= len(escaped) || escaped[i+1] != 0xff {
				return nil, fmt.Errorf("%w: invalid escape in version key", ErrCorrupt)
			}

			i++
		}
	}

	return key, nil
}

// versionsRange maps a range of keys to the range of their versions
func versionsRange(r keys.Range) keys.Range {
	versions := keys.All()

	if r.Min != nil {
		versions = versions.Gte(escapeBound(r.Min))
	}

	if r.Max != nil {
		versions = versions.Lt(escapeBound(r.Max))
	}

	return versions
}

func newVersionValue(mutation Mutation) []byte {
	if mutation.Delete {
		return []byte{kindDelete}
	}

	v := make([]byte, len(mutation.Value)+1)
	v[0] = kindPut
	copy(v[1:], mutation.Value)

	return v
}

type versionValue []byte

func (v versionValue) deleted() bool {
	return len(v) == 0 || v[0] == kindDelete
}

func (v versionValue) value() []byte {
	if v.deleted() {
		return nil
	}

	return v[1:]
}

func bytesToUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: expected 8 bytes, got %d", ErrCorrupt, len(b))
	}

	return binary.BigEndian.Uint64(b), nil
}

func uint64ToBytes(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)

	return b
}
