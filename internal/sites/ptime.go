package sites

import (
	"fmt"
	"time"
)

// Canonical publish-time shape, e.g. "2022-02-07 13:34:53 +0800".
const ptimeLayout = "2006-01-02 15:04:05 -0700"

// jst is used for sources that publish zone-less Japanese wall-clock times.
var jst = time.FixedZone("JST", 9*60*60)

// ptime renders t in the target civil timezone.
func (e *Env) ptime(t time.Time) string {
	return t.In(e.Loc).Format(ptimeLayout)
}

// ptimeFromUnix converts a unix-seconds stamp.
func (e *Env) ptimeFromUnix(sec int64) string {
	return e.ptime(time.Unix(sec, 0))
}

// ptimeFromLayout parses value with a zone-carrying layout and converts it.
func (e *Env) ptimeFromLayout(layout, value string) (string, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return "", fmt.Errorf("parse time %q: %w", value, err)
	}
	return e.ptime(t), nil
}

// ptimeFromWallClock parses a zone-less value as wall-clock time in loc, then
// converts it to the target zone.
func (e *Env) ptimeFromWallClock(layout, value string, loc *time.Location) (string, error) {
	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return "", fmt.Errorf("parse time %q: %w", value, err)
	}
	return e.ptime(t), nil
}

// ptimeFromDate parses a date-only value as midnight in the target zone.
// Release-date sources carry no time-of-day at all.
func (e *Env) ptimeFromDate(layout, value string) (string, error) {
	t, err := time.ParseInLocation(layout, value, e.Loc)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", value, err)
	}
	return t.Format(ptimeLayout), nil
}
