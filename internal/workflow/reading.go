package workflow

import (
	"regexp"
	"strconv"
)

// ReadingDigits is the number of dials on the meter
const ReadingDigits = 7

var (
	readingMask = regexp.MustCompile(`^\d{0,7}$`)
	phoneMask   = regexp.MustCompile(`^\d*$`)
)

// MaskReading accepts partial readings of up to 7 digits
func MaskReading(input string) bool {
	return readingMask.MatchString(input)
}

// MaskPhone accepts digit-only phone numbers of any length
func MaskPhone(input string) bool {
	return phoneMask.MatchString(input)
}

// IsCompleteReading reports whether the reading has all 7 digits
func IsCompleteReading(reading string) bool {
	return len(reading) == ReadingDigits && readingMask.MatchString(reading)
}

// parseReading parses a complete reading as a base-10 integer
func parseReading(reading string) (int64, bool) {
	if !IsCompleteReading(reading) {
		return 0, false
	}
	n, err := strconv.ParseInt(reading, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
