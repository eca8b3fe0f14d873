package pickle

import (
	"fmt"
	"math"
	"time"
)

func registerDatetime(r *Registry) {
	r.Register("datetime", "date", newDate)
	r.Register("datetime", "time", newTimeOfDay)
	r.Register("datetime", "datetime", newDatetime)
	r.Register("datetime", "timedelta", newTimedelta)
	r.Register("datetime", "timezone", newTimezone)
}

// datetimeState returns the packed state bytes of date, time and datetime
// pickles. Python 2 passes them as str, Python 3 as bytes.
func datetimeState(x any, size int) ([]byte, bool) {
	var data string
	switch x := x.(type) {
	case Bytes:
		data = string(x)
	case string:
		data = x
	default:
		return nil, false
	}
	if len(data) != size {
		return nil, false
	}
	return []byte(data), true
}

// tzinfo converts the optional tzinfo argument.
func tzinfo(args Tuple, i int) (*time.Location, error) {
	if len(args) <= i {
		return time.UTC, nil
	}
	switch tz := args[i].(type) {
	case None:
		return time.UTC, nil
	case *time.Location:
		return tz, nil
	}
	return nil, fmt.Errorf("tzinfo: unsupported %T", args[i])
}

// intArgs converts args to ints, each in [lo, hi].
func intArgs(args Tuple, bounds ...[2]int) ([]int, error) {
	v := make([]int, len(bounds))
	for i := range bounds {
		if i >= len(args) {
			v[i] = bounds[i][0]
			continue
		}
		n, err := AsInt64(args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		if n < int64(bounds[i][0]) || n > int64(bounds[i][1]) {
			return nil, fmt.Errorf("argument %d: %d out of range [%d, %d]", i, n, bounds[i][0], bounds[i][1])
		}
		v[i] = int(n)
	}
	return v, nil
}

var (
	boundYear   = [2]int{1, 9999}
	boundMonth  = [2]int{1, 12}
	boundDay    = [2]int{1, 31}
	boundHour   = [2]int{0, 23}
	boundMinute = [2]int{0, 59}
	boundSecond = [2]int{0, 59}
	boundMicro  = [2]int{0, 999999}
)

func checkDate(year, month, day int) error {
	_, err := intArgs(Tuple{int64(year), int64(month), int64(day)}, boundYear, boundMonth, boundDay)
	return err
}

func checkClock(hour, minute, second, micro int) error {
	_, err := intArgs(Tuple{int64(hour), int64(minute), int64(second), int64(micro)}, boundHour, boundMinute, boundSecond, boundMicro)
	return err
}

func micros(b []byte) int {
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}

// date(state) or date(year, month, day)
func newDate(args Tuple) (any, error) {
	if err := nargs(args, 1, 3); err != nil {
		return nil, err
	}
	if b, ok := datetimeState(args[0], 4); ok && len(args) == 1 {
		year := int(b[0])<<8 | int(b[1])
		if err := checkDate(year, int(b[2]), int(b[3])); err != nil {
			return nil, err
		}
		return time.Date(year, time.Month(b[2]), int(b[3]), 0, 0, 0, 0, time.UTC), nil
	}
	v, err := intArgs(args, boundYear, boundMonth, boundDay)
	if err != nil {
		return nil, err
	}
	return time.Date(v[0], time.Month(v[1]), v[2], 0, 0, 0, 0, time.UTC), nil
}

// time(state[, tz]) or time(hour, minute, second, microsecond[, tz])
//
// The result is a time.Time on January 1 of year 0.
func newTimeOfDay(args Tuple) (any, error) {
	if err := nargs(args, 1, 5); err != nil {
		return nil, err
	}
	if b, ok := datetimeState(args[0], 6); ok && len(args) <= 2 {
		loc, err := tzinfo(args, 1)
		if err != nil {
			return nil, err
		}
		hour := int(b[0] & 0x7f) // high bit is fold
		if err := checkClock(hour, int(b[1]), int(b[2]), micros(b[3:])); err != nil {
			return nil, err
		}
		return time.Date(0, time.January, 1, hour, int(b[1]), int(b[2]), micros(b[3:])*1000, loc), nil
	}
	n := min(len(args), 4)
	v, err := intArgs(args[:n], boundHour, boundMinute, boundSecond, boundMicro)
	if err != nil {
		return nil, err
	}
	loc, err := tzinfo(args, 4)
	if err != nil {
		return nil, err
	}
	return time.Date(0, time.January, 1, v[0], v[1], v[2], v[3]*1000, loc), nil
}

// datetime(state[, tz]) or datetime(year, month, day, hour, minute, second, microsecond[, tz])
func newDatetime(args Tuple) (any, error) {
	if err := nargs(args, 1, 8); err != nil {
		return nil, err
	}
	if b, ok := datetimeState(args[0], 10); ok && len(args) <= 2 {
		loc, err := tzinfo(args, 1)
		if err != nil {
			return nil, err
		}
		year := int(b[0])<<8 | int(b[1])
		month := time.Month(b[2] & 0x7f) // high bit is fold
		if err := checkDate(year, int(month), int(b[3])); err != nil {
			return nil, err
		}
		if err := checkClock(int(b[4]), int(b[5]), int(b[6]), micros(b[7:])); err != nil {
			return nil, err
		}
		return time.Date(year, month, int(b[3]), int(b[4]), int(b[5]), int(b[6]), micros(b[7:])*1000, loc), nil
	}
	n := min(len(args), 7)
	v, err := intArgs(args[:n], boundYear, boundMonth, boundDay, boundHour, boundMinute, boundSecond, boundMicro)
	if err != nil {
		return nil, err
	}
	loc, err := tzinfo(args, 7)
	if err != nil {
		return nil, err
	}
	return time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], v[5], v[6]*1000, loc), nil
}

// timedelta(days, seconds, microseconds) -> time.Duration
func newTimedelta(args Tuple) (any, error) {
	if err := nargs(args, 0, 3); err != nil {
		return nil, err
	}
	units := []int64{86400 * 1e6, 1e6, 1}
	var us int64
	for i, x := range args {
		n, err := AsInt64(x)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		if n > math.MaxInt64/units[i] || n < math.MinInt64/units[i] {
			return nil, fmt.Errorf("timedelta overflows time.Duration")
		}
		part := n * units[i]
		if (part > 0 && us > math.MaxInt64-part) || (part < 0 && us < math.MinInt64-part) {
			return nil, fmt.Errorf("timedelta overflows time.Duration")
		}
		us += part
	}
	if us > int64(math.MaxInt64/time.Microsecond) || us < int64(math.MinInt64/time.Microsecond) {
		return nil, fmt.Errorf("timedelta overflows time.Duration")
	}
	return time.Duration(us) * time.Microsecond, nil
}

// timezone(offset[, name]) -> *time.Location
func newTimezone(args Tuple) (any, error) {
	if err := nargs(args, 1, 2); err != nil {
		return nil, err
	}
	offset, ok := args[0].(time.Duration)
	if !ok {
		return nil, fmt.Errorf("offset: want timedelta, got %T", args[0])
	}
	if offset <= -24*time.Hour || offset >= 24*time.Hour {
		return nil, fmt.Errorf("offset %s out of range", offset)
	}
	if len(args) == 2 {
		name, err := AsString(args[1])
		if err != nil {
			return nil, fmt.Errorf("name: %w", err)
		}
		return time.FixedZone(name, int(offset/time.Second)), nil
	}
	if offset == 0 {
		return time.UTC, nil
	}
	return time.FixedZone(utcName(offset), int(offset/time.Second)), nil
}

// utcName formats offset the way Python names unnamed timezones, e.g. UTC+05:30.
func utcName(offset time.Duration) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	return fmt.Sprintf("UTC%c%02d:%02d", sign, h, m)
}
