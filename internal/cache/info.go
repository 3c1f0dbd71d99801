package cache

import (
	"strconv"
	"strings"
)

// parseInfoUint extracts a "field:value" line's integer value out of a
// Redis INFO response, returning 0 if the field is absent or unparsable.
func parseInfoUint(info, field string) uint64 {
	for _, line := range strings.Split(info, "\r\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || key != field {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
