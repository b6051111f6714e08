package duration

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errMalformed = errors.New("malformed date")

// genericLayouts are tried after the locale formats. Layouts without a zone
// are interpreted in the classifier's location.
var genericLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"January 2, 2006",
	"Jan 2, 2006",
}

// Classifier computes account ages relative to a clock in a fixed location.
type Classifier struct {
	locale Locale
	loc    *time.Location
	now    func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLocale sets the locale used to parse and render dates.
func WithLocale(l Locale) Option {
	return func(c *Classifier) { c.locale = l }
}

// WithLocation sets the location whose calendar days are counted.
func WithLocation(loc *time.Location) Option {
	return func(c *Classifier) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithClock overrides the current time source.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a Classifier using the Indonesian locale, local time and the
// wall clock unless overridden.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		locale: Indonesian,
		loc:    time.Local,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Locale returns the configured locale.
func (c *Classifier) Locale() Locale {
	return c.locale
}

// Now returns the classifier's current time in its location.
func (c *Classifier) Now() time.Time {
	return c.now().In(c.loc)
}

// DaysSince returns the whole number of calendar days between the creation
// date and today. Only the long locale format is accepted; anything else
// yields Unclassifiable.
func (c *Classifier) DaysSince(created string) int {
	t, err := c.parseLong(created)
	if err != nil {
		return Unclassifiable
	}
	return calendarDays(t, c.Now())
}

// Matches reports whether the record created on the given date belongs in b.
func (c *Classifier) Matches(created string, b Bucket) bool {
	return b.Matches(c.DaysSince(created))
}

// Display renders the account age as "N Day(s)", "N Month(s)" or "N Year(s)",
// with a leading minus for future dates. It returns "-" when the date is
// empty or cannot be parsed.
func (c *Classifier) Display(created string) string {
	t, ok := c.parse(created)
	if !ok {
		return "-"
	}
	return FormatAge(calendarDays(t, c.Now()))
}

// FormatDate renders the creation date in the short locale form or "-".
func (c *Classifier) FormatDate(created string) string {
	t, ok := c.parse(created)
	if !ok {
		return "-"
	}
	return c.locale.FormatShort(t)
}

// FormatLong renders t in the format stored on account records.
func (c *Classifier) FormatLong(t time.Time) string {
	return c.locale.FormatLong(t.In(c.loc))
}

// FormatAge renders an age in days. Months are 30 days and years 365 days;
// the unit is pluralized only when the value exceeds one.
func FormatAge(days int) string {
	switch {
	case days < 0:
		return "-" + plural(-days, "Day")
	case days < 30:
		return plural(days, "Day")
	case days < 365:
		return plural(days/30, "Month")
	default:
		return plural(days/365, "Year")
	}
}

func plural(n int, unit string) string {
	if n > 1 {
		return fmt.Sprintf("%d %ss", n, unit)
	}
	return fmt.Sprintf("%d %s", n, unit)
}

// parse accepts the long locale format, the "17 Jul 2025" short format and
// the generic layouts, in that order.
func (c *Classifier) parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := c.parseLong(s); err == nil {
		return t, true
	}
	if t, err := c.parseShort(s); err == nil {
		return t, true
	}
	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t.In(c.loc), true
		}
	}
	return time.Time{}, false
}

// parseLong parses "<weekday>, <day> <month> <year>". The weekday name is not
// checked against the date.
func (c *Classifier) parseLong(s string) (time.Time, error) {
	_, rest, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return time.Time{}, errMalformed
	}
	fields := strings.Fields(rest)
	if len(fields) != 3 {
		return time.Time{}, errMalformed
	}
	month, ok := c.locale.month(fields[1])
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month %q", errMalformed, fields[1])
	}
	return c.civil(fields[0], month, fields[2])
}

// parseShort parses "<day> <abbreviated month> <year>".
func (c *Classifier) parseShort(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return time.Time{}, errMalformed
	}
	month, ok := c.locale.shortMonth(fields[1])
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month %q", errMalformed, fields[1])
	}
	return c.civil(fields[0], month, fields[2])
}

func (c *Classifier) civil(dayStr string, month time.Month, yearStr string) (time.Time, error) {
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: day %q", errMalformed, dayStr)
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: year %q", errMalformed, yearStr)
	}
	return time.Date(year, month, day, 0, 0, 0, 0, c.loc), nil
}

// calendarDays counts midnight boundaries between from and to, using each
// value's own calendar date so DST shifts do not skew the result.
func calendarDays(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	// Duration saturates near 292 years; Unix seconds do not.
	return int((b.Unix() - a.Unix()) / 86400)
}
