package interval

import "time"

// BucketStart returns the start (UNIX seconds) of the bucket that ts falls
// into for code, shifted by offset whole buckets.
//
// Fixed codes use ts - ts%secs. Week buckets start Monday 00:00 UTC, month
// buckets on the 1st, year buckets on Jan 1. Unknown codes return ts+offset.
func BucketStart(ts int64, code Code, offset int) int64 {
	if secs, ok := fixedSeconds(code); ok {
		return ts - ts%secs + int64(offset)*secs
	}
	if len(code) == 0 {
		return ts + int64(offset)
	}

	t := time.Unix(ts, 0).UTC()
	switch code[0] {
	case 'w':
		back := 0
		if wd := int(t.Weekday()); wd != 1 {
			if wd > 1 {
				back = wd - 1
			} else {
				back = 6 // Sunday
			}
		}
		d := time.Date(t.Year(), t.Month(), t.Day()-back, 0, 0, 0, 0, time.UTC)
		return d.AddDate(0, 0, 7*offset).Unix()
	case 'n':
		return time.Date(t.Year(), t.Month()+time.Month(offset), 1, 0, 0, 0, 0, time.UTC).Unix()
	case 'y':
		return time.Date(t.Year()+offset, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	}
	return ts + int64(offset)
}
