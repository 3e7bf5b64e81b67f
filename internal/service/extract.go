package service

import (
	"strconv"
	"strings"
	"time"
)

// IssuedAtLayout is the wire format of PrescriptionPayload.IssuedAt
const IssuedAtLayout = "2006-01-02T15:04:05Z"

// Defaults used when a dose or frequency string carries no digits
const (
	DefaultDoseMg         = 0
	DefaultFrequencyHours = 24
)

// digitsOrDefault keeps only the ASCII digits of s and parses them. An empty
// result, or one that does not fit an int, yields def.
func digitsOrDefault(s string, def int) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return def
	}

	n, err := strconv.Atoi(b.String())
	if err != nil {
		return def
	}
	return n
}

// ParseDoseMg extracts the dose in milligrams from a string like "50mg"
func ParseDoseMg(dose string) int {
	return digitsOrDefault(dose, DefaultDoseMg)
}

// ParseFrequencyHours extracts the interval in hours from a string like "8h"
func ParseFrequencyHours(freq string) int {
	return digitsOrDefault(freq, DefaultFrequencyHours)
}

// TreatmentWindow returns the start and end of a treatment. start is issuedAt
// parsed in loc, or now when issuedAt does not parse. end is start plus days
// calendar days.
func TreatmentWindow(issuedAt string, days int, loc *time.Location, now time.Time) (start, end time.Time, parsed bool) {
	if loc == nil {
		loc = time.UTC
	}

	start, err := time.ParseInLocation(IssuedAtLayout, issuedAt, loc)
	if err != nil {
		start = now
	} else {
		parsed = true
	}

	return start, start.AddDate(0, 0, days), parsed
}
