package duration

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Locale holds the calendar names used by stored creation dates.
type Locale struct {
	Tag         language.Tag
	Months      [12]string
	ShortMonths [12]string
	Weekdays    [7]string // Sunday first, like time.Weekday
}

// Indonesian is the locale the account records are written in,
// e.g. "Kamis, 17 Juli 2025".
var Indonesian = Locale{
	Tag: language.Indonesian,
	Months: [12]string{
		"Januari", "Februari", "Maret", "April", "Mei", "Juni",
		"Juli", "Agustus", "September", "Oktober", "November", "Desember",
	},
	ShortMonths: [12]string{
		"Jan", "Feb", "Mar", "Apr", "Mei", "Jun",
		"Jul", "Agu", "Sep", "Okt", "Nov", "Des",
	},
	Weekdays: [7]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"},
}

// English renders dates as "Thursday, 17 July 2025".
var English = Locale{
	Tag: language.English,
	Months: [12]string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	},
	ShortMonths: [12]string{
		"Jan", "Feb", "Mar", "Apr", "May", "Jun",
		"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
	},
	Weekdays: [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
}

// LookupLocale resolves a BCP 47 tag such as "id", "id-ID" or "en-US".
func LookupLocale(tag string) (Locale, error) {
	if tag == "" {
		return Indonesian, nil
	}
	t, err := language.Parse(tag)
	if err != nil {
		return Locale{}, fmt.Errorf("parse locale %q: %w", tag, err)
	}
	base, _ := t.Base()
	switch base.String() {
	case "id":
		return Indonesian, nil
	case "en":
		return English, nil
	}
	return Locale{}, fmt.Errorf("unsupported locale %q (supported: id, en)", tag)
}

// month resolves a long month name, case-insensitively.
func (l Locale) month(name string) (time.Month, bool) {
	for i, m := range l.Months {
		if strings.EqualFold(m, name) {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

// shortMonth resolves an abbreviated month name in this locale or in English.
func (l Locale) shortMonth(name string) (time.Month, bool) {
	for _, names := range [][12]string{English.ShortMonths, l.ShortMonths} {
		for i, m := range names {
			if strings.EqualFold(m, name) {
				return time.Month(i + 1), true
			}
		}
	}
	return 0, false
}

// FormatLong renders t in the stored long format.
func (l Locale) FormatLong(t time.Time) string {
	return fmt.Sprintf("%s, %d %s %d", l.Weekdays[t.Weekday()], t.Day(), l.Months[t.Month()-1], t.Year())
}

// FormatShort renders t as "17 Jul 2025".
func (l Locale) FormatShort(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), l.ShortMonths[t.Month()-1], t.Year())
}
