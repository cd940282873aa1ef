package shift

import "time"

// RoundMode selects the rounding direction.
type RoundMode int

const (
	RoundNearest RoundMode = iota
	RoundUp
	RoundDown
)

func (m RoundMode) String() string {
	switch m {
	case RoundUp:
		return "up"
	case RoundDown:
		return "down"
	default:
		return "nearest"
	}
}

// Round aligns t to a multiple of quantum counted from t's local midnight.
// The sub-second part is discarded first. RoundNearest rounds half up.
// The result keeps t's location, and rounding an aligned timestamp returns
// it unchanged in every mode.
func Round(t time.Time, quantum time.Duration, mode RoundMode) time.Time {
	q := int64(quantum / time.Second)
	if q <= 0 {
		return t
	}
	secs := int64(t.Hour()*3600 + t.Minute()*60 + t.Second())
	nanos := time.Duration(t.Nanosecond())

	var rounded int64
	switch mode {
	case RoundUp:
		rounded = secs / q * q
		if rounded < secs {
			rounded += q
		}
	case RoundDown:
		rounded = secs / q * q
	default:
		rounded = (secs + q/2) / q * q
	}
	return t.Add(time.Duration(rounded-secs)*time.Second - nanos)
}

// RoundInterval rounds both ends of i to the nearest quantum.
func RoundInterval(i Interval, quantum time.Duration) Interval {
	return Interval{
		Start:  Round(i.Start, quantum, RoundNearest),
		Finish: Round(i.Finish, quantum, RoundNearest),
	}
}
