// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hodler

import (
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"
)

// Interval is a relative time lock in BIP-68 time units of 512 seconds.
type Interval uint16

const (
	// IntervalHour locks for about an hour.
	IntervalHour Interval = 7

	// IntervalMonth locks for about 30 days.
	IntervalMonth Interval = 5063

	// IntervalHalfYear locks for about 183 days.
	IntervalHalfYear Interval = 30881

	// IntervalYear locks for about 365 days.
	IntervalYear Interval = 61593
)

// Intervals lists the supported lock intervals, shortest first.
var Intervals = []Interval{
	IntervalHour, IntervalMonth, IntervalHalfYear, IntervalYear,
}

// Valid returns true if the interval is one of the supported ones.
func (i Interval) Valid() bool {
	for _, v := range Intervals {
		if i == v {
			return true
		}
	}

	return false
}

// Sequence returns the input sequence that enforces the interval.
func (i Interval) Sequence() uint32 {
	return wire.SequenceLockTimeIsSeconds | uint32(i)
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	units := time.Duration(i) << wire.SequenceLockTimeGranularity
	return units * time.Second
}

// String returns the name of the interval.
func (i Interval) String() string {
	switch i {
	case IntervalHour:
		return "hour"
	case IntervalMonth:
		return "month"
	case IntervalHalfYear:
		return "halfyear"
	case IntervalYear:
		return "year"
	default:
		return fmt.Sprintf("interval(%d)", uint16(i))
	}
}

// ParseInterval parses the name returned by String.
func ParseInterval(name string) (Interval, error) {
	for _, i := range Intervals {
		if strings.EqualFold(i.String(), name) {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownInterval, name)
}
