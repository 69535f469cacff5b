package mediakit

import "time"

// Time unit conversion constants.
const (
	NsecPerSec  = 1_000_000_000
	NsecPerMsec = 1_000_000
	NsecPerUsec = 1_000
	UsecPerSec  = 1_000_000
	UsecPerMsec = 1_000
	MsecPerSec  = 1_000
)

// NoTimestamp marks an unset PTS/DTS.
const NoTimestamp int64 = -9223372036854775808

// DurationToTimeBase converts a wall-clock duration into ticks of the
// given time base.
func DurationToTimeBase(d time.Duration, tb Rational) int64 {
	if tb.IsZero() {
		return int64(d / time.Microsecond)
	}
	return Rescale(d.Nanoseconds(), Rational{Num: 1, Den: NsecPerSec}, tb)
}

// TimeBaseToDuration converts ticks of a time base into a wall-clock duration.
func TimeBaseToDuration(v int64, tb Rational) time.Duration {
	if tb.IsZero() {
		return time.Duration(v) * time.Microsecond
	}
	return time.Duration(Rescale(v, tb, Rational{Num: 1, Den: NsecPerSec}))
}

// audioDuration returns the explicit duration when set, otherwise the
// span of samples at rate expressed in tb ticks.
func audioDuration(explicit int64, samples, rate int, tb Rational) int64 {
	if explicit > 0 {
		return explicit
	}
	if tb.IsZero() || rate <= 0 {
		return 0
	}
	return Rescale(int64(samples), Rational{Num: 1, Den: int64(rate)}, tb)
}
