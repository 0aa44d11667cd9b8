// Package identifier implements the 12-character clinic identifier scheme
// used for patients and staff.
//
// Format: [2-char hospital][1-char category][2-digit year][1-char month][1-char checksum][5-digit sequence]
//
// Example: HCM262D00147 is hospital "HC", male patient, 2026, February,
// checksum 'D', sequence 147.
package identifier

import (
	"fmt"
	"strings"
	"time"
)

// Length is the fixed identifier length.
const Length = 12

// EntityKind distinguishes the two counter namespaces.
type EntityKind string

const (
	EntityPatient EntityKind = "patient"
	EntityStaff   EntityKind = "staff"
)

// Patient category codes (gender).
var genderCodes = map[string]byte{
	"male":          'M',
	"female":        'F',
	"other":         'O',
	"not_disclosed": 'N',
	"unknown":       'U',
}

// Staff category codes (role).
var roleCodes = map[string]byte{
	"super_admin":       'S',
	"admin":             'A',
	"doctor":            'D',
	"receptionist":      'R',
	"pharmacist":        'P',
	"nurse":             'N',
	"optical_staff":     'O',
	"cashier":           'C',
	"inventory_manager": 'I',
	"report_viewer":     'V',
	"lab_technician":    'T',
}

// GenderCode returns the 1-char category code for a patient gender,
// falling back to 'U' for anything unrecognized.
func GenderCode(gender string) byte {
	if c, ok := genderCodes[strings.ToLower(strings.TrimSpace(gender))]; ok {
		return c
	}
	return 'U'
}

// RoleCode returns the 1-char category code for a staff role,
// falling back to 'X' for anything unrecognized.
func RoleCode(role string) byte {
	if c, ok := roleCodes[strings.ToLower(strings.TrimSpace(role))]; ok {
		return c
	}
	return 'X'
}

// MonthCode encodes months 1-9 as digits and 10-12 as 'A'-'C'.
func MonthCode(month time.Month) byte {
	if month <= 9 {
		return byte('0' + int(month))
	}
	return byte('A' + int(month) - 10)
}

// DecodeMonth is the inverse of MonthCode. Returns 0 for invalid codes.
func DecodeMonth(code byte) time.Month {
	switch {
	case code >= '1' && code <= '9':
		return time.Month(code - '0')
	case code >= 'A' && code <= 'C':
		return time.Month(code - 'A' + 10)
	default:
		return 0
	}
}

// charValue maps '0'-'9' to 0-9 and 'A'-'Z' to 10-35.
func charValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'Z':
		return int(c) - 55, true
	default:
		return 0, false
	}
}

// valueChar is the inverse of charValue for 0-35.
func valueChar(v int) byte {
	if v < 10 {
		return byte('0' + v)
	}
	return byte(55 + v)
}

// Checksum computes the check character over a 6-character prefix
// (hospital + category + year + month): each character's value weighted by
// its 1-indexed position, summed, modulo 36.
func Checksum(prefix string) (byte, error) {
	if len(prefix) != 6 {
		return 0, fmt.Errorf("prefix must be 6 characters, got %d", len(prefix))
	}
	total := 0
	for i := 0; i < len(prefix); i++ {
		v, ok := charValue(prefix[i])
		if !ok {
			return 0, fmt.Errorf("invalid character %q at position %d", prefix[i], i+1)
		}
		total += v * (i + 1)
	}
	return valueChar(total % 36), nil
}

// Format assembles a full 12-character identifier.
func Format(hospitalCode string, categoryCode byte, date time.Time, sequence int) (string, error) {
	hospitalCode = strings.ToUpper(strings.TrimSpace(hospitalCode))
	if len(hospitalCode) != 2 {
		return "", fmt.Errorf("hospital code must be 2 characters, got %q", hospitalCode)
	}
	if sequence < 1 || sequence > 99999 {
		return "", fmt.Errorf("sequence %d out of range 1-99999", sequence)
	}

	prefix := fmt.Sprintf("%s%c%02d%c", hospitalCode, categoryCode, date.Year()%100, MonthCode(date.Month()))
	check, err := Checksum(prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%c%05d", prefix, check, sequence), nil
}

// Validate recomputes the checksum from the first 6 characters and compares
// it to the 7th. It also rejects ids of the wrong length or alphabet.
func Validate(id string) bool {
	if len(id) != Length {
		return false
	}
	for i := 0; i < Length; i++ {
		if _, ok := charValue(id[i]); !ok {
			return false
		}
	}
	check, err := Checksum(id[:6])
	if err != nil {
		return false
	}
	return id[6] == check
}

// Components holds the decoded parts of an identifier.
type Components struct {
	HospitalCode  string
	CategoryCode  byte
	Year          int
	Month         time.Month
	Checksum      byte
	Sequence      int
	ChecksumValid bool
}

// Parse splits an identifier into its components. The checksum is verified
// but a mismatch is reported via ChecksumValid rather than an error.
func Parse(id string) (*Components, error) {
	if len(id) != Length {
		return nil, fmt.Errorf("identifier must be %d characters, got %d", Length, len(id))
	}

	var year, seq int
	if _, err := fmt.Sscanf(id[3:5], "%02d", &year); err != nil {
		return nil, fmt.Errorf("invalid year %q: %w", id[3:5], err)
	}
	if _, err := fmt.Sscanf(id[7:12], "%05d", &seq); err != nil {
		return nil, fmt.Errorf("invalid sequence %q: %w", id[7:12], err)
	}

	month := DecodeMonth(id[5])
	if month == 0 {
		return nil, fmt.Errorf("invalid month code %q", id[5])
	}

	return &Components{
		HospitalCode:  id[0:2],
		CategoryCode:  id[2],
		Year:          2000 + year,
		Month:         month,
		Checksum:      id[6],
		Sequence:      seq,
		ChecksumValid: Validate(id),
	}, nil
}
