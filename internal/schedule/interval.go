package schedule

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidIntervalFormat is returned for interval strings that are neither
// plain seconds nor <N><unit>.
var ErrInvalidIntervalFormat = errors.New("invalid interval format")

var (
	intervalRe = regexp.MustCompile(`^(\d+)([smhdwSMHDW])$`)
	numericRe  = regexp.MustCompile(`^(\d+)(?:\.\d*)?$`)
)

var unitSeconds = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
	'w': 604800,
}

// ParseInterval converts "30", "30s", "5m", "1h", "1d" or "2w" into a duration.
// Units are case-insensitive. A plain number is seconds; a fractional part is
// truncated since runs are recorded with second precision. Unparseable input
// is an error, never zero.
func ParseInterval(s string) (time.Duration, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidIntervalFormat)
	}

	if m := numericRe.FindStringSubmatch(raw); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidIntervalFormat, s, err)
		}
		return seconds(s, n, 1)
	}

	m := intervalRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIntervalFormat, s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidIntervalFormat, s, err)
	}
	unit := strings.ToLower(m[2])[0]
	return seconds(s, n, unitSeconds[unit])
}

func seconds(raw string, n, mult int64) (time.Duration, error) {
	const maxSeconds = math.MaxInt64 / int64(time.Second)
	if n > maxSeconds/mult {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidIntervalFormat, raw)
	}
	return time.Duration(n*mult) * time.Second, nil
}
