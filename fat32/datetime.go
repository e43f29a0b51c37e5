package fat32

import "time"

// parseDate reads a FAT directory entry date stamp: bits 15-9 years since
// 1980, bits 8-5 month, bits 4-0 day. Returns the zero time.Time if day or
// month is 0, matching the FAT specification's "invalid" encoding.
func parseDate(v uint16) time.Time {
	day := int(v & 0x1F)
	month := int((v >> 5) & 0x0F)
	yearSince1980 := int(v >> 9)
	if day == 0 || month == 0 {
		return time.Time{}
	}
	return time.Date(1980+yearSince1980, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// parseTime reads a FAT directory entry time stamp: bits 15-11 hours,
// bits 10-5 minutes, bits 4-0 two-second count.
func parseTime(v uint16) (hour, min, sec int) {
	sec = int(v&0x1F) * 2
	min = int((v >> 5) & 0x3F)
	hour = int((v >> 11) & 0x1F)
	return hour, min, sec
}

// combineDateTime merges a FAT date and time field into one time.Time. If
// date is the invalid all-zero encoding, the zero time.Time is returned
// even if time is non-zero.
func combineDateTime(date, clock uint16) time.Time {
	d := parseDate(date)
	if d.IsZero() {
		return time.Time{}
	}
	hour, min, sec := parseTime(clock)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, sec, 0, time.UTC)
}
