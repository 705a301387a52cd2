package composite

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jrife/skv/storage/kv/keys"
)

const printableEscape = '^'

// Printable renders key as text. Printable ASCII characters other
// than ^ are written as is. Every other byte is written as ^
// followed by two lowercase hex digits.
func Printable(key keys.Key) string {
	var builder strings.Builder

	for _, b := range key {
		if b >= 0x20 && b <= 0x7e && b != printableEscape {
			builder.WriteByte(b)

			continue
		}

		fmt.Fprintf(&builder, "^%02x", b)
	}

	return builder.String()
}

// ParsePrintable inverts Printable
func ParsePrintable(s string) (keys.Key, error) {
	key := keys.Key{}

	for i := 0; i < len(s); i++ {
		if s[i] != printableEscape {
			key = append(key, s[i])

			continue
		}

		if i+2 >= len(s) {
			return nil, fmt.Errorf("%w: truncated escape at offset %d", ErrMalformedKey, i)
		}

		b, err := strconv.ParseUint(s[i+1:i+3], 16, 8)

		if err != nil {
			return nil, fmt.Errorf("%w: invalid escape %q at offset %d", ErrMalformedKey, s[i:i+3], i)
		}

		key = append(key, byte(b))
		i += 2
	}

	return key, nil
}
