package entity

import (
	"math"
	"time"
)

// Stamp times are epoch milliseconds, with these sentinels:
const (
	// TimeUncommitted marks a stamp pending commit. It sorts after every
	// real time, like an infinite future.
	TimeUncommitted int64 = math.MaxInt64

	// TimeLatest is the position time that sees everything, including
	// uncommitted content.
	TimeLatest int64 = math.MaxInt64

	// TimeCanceled marks a canceled stamp. It is distinct from
	// TimeUncommitted and never a valid creation time.
	TimeCanceled int64 = math.MinInt64

	// TimePremundane precedes every real time; used for bootstrap content.
	TimePremundane int64 = math.MinInt64 + 1
)

// IsRealTime reports whether t is neither uncommitted nor canceled.
func IsRealTime(t int64) bool {
	return t != TimeUncommitted && t != TimeCanceled
}

// FormatTime renders a stamp time for logs and CLI output.
func FormatTime(t int64) string {
	switch t {
	case TimeUncommitted:
		return "uncommitted"
	case TimeCanceled:
		return "canceled"
	case TimePremundane:
		return "premundane"
	}
	return time.UnixMilli(t).UTC().Format(time.RFC3339Nano)
}
