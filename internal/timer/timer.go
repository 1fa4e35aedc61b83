// Package timer keeps a value of the Date response header, rendered at most once a second.
package timer

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Layout is the IMF-fixdate format, which must always be in GMT.
const Layout = "Mon, 02 Jan 2006 15:04:05 GMT"

type Date struct {
	clock  clock.Clock
	second int64
	value  []byte
}

func NewDate(clk clock.Clock) *Date {
	return &Date{
		clock:  clk,
		second: -1,
		value:  make([]byte, 0, len(Layout)),
	}
}

// Value returns the current date. The slice is overwritten once the second changes,
// so it must be copied if retained.
func (d *Date) Value() []byte {
	now := d.clock.Now()
	if sec := now.Unix(); sec != d.second {
		d.second = sec
		d.value = now.UTC().AppendFormat(d.value[:0], Layout)
	}

	return d.value
}

// String returns the current date as a fresh string.
func (d *Date) String() string {
	return string(d.Value())
}

// Parse is the inverse of Value, mostly useful in tests.
func Parse(value string) (time.Time, error) {
	return time.Parse(Layout, value)
}
