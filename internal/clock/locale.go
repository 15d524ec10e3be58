package clock

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// Locale holds the Go time layouts matching a language's short date and
// date-time conventions.
type Locale struct {
	Tag            language.Tag
	dateLayout     string
	dateTimeLayout string
}

var supportedLocales = []Locale{
	{Tag: language.AmericanEnglish, dateLayout: "1/2/2006", dateTimeLayout: "1/2/2006, 3:04:05 PM"},
	{Tag: language.BritishEnglish, dateLayout: "02/01/2006", dateTimeLayout: "02/01/2006, 15:04:05"},
	{Tag: language.German, dateLayout: "2.1.2006", dateTimeLayout: "2.1.2006, 15:04:05"},
	{Tag: language.French, dateLayout: "02/01/2006", dateTimeLayout: "02/01/2006 15:04:05"},
	{Tag: language.Spanish, dateLayout: "2/1/2006", dateTimeLayout: "2/1/2006, 15:04:05"},
	{Tag: language.Japanese, dateLayout: "2006/1/2", dateTimeLayout: "2006/1/2 15:04:05"},
}

var localeMatcher = func() language.Matcher {
	tags := make([]language.Tag, len(supportedLocales))
	for i, l := range supportedLocales {
		tags[i] = l.Tag
	}
	return language.NewMatcher(tags)
}()

// DefaultLocale is en-US.
func DefaultLocale() Locale {
	return supportedLocales[0]
}

// ParseLocale resolves a BCP 47 tag ("en-US", "de-AT", "en_GB") to the closest
// supported locale. An empty string yields DefaultLocale.
func ParseLocale(s string) (Locale, error) {
	if s == "" {
		return DefaultLocale(), nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return Locale{}, fmt.Errorf("parse locale %q: %w", s, err)
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return Locale{}, fmt.Errorf("unsupported locale %q", s)
	}
	return supportedLocales[idx], nil
}

// FormatDate renders t as a short date, e.g. 3/14/2026 for en-US.
func (l Locale) FormatDate(t time.Time) string {
	return t.Format(l.dateLayout)
}

// FormatDateTime renders t as date and time, e.g. 3/14/2026, 1:05:09 PM for en-US.
func (l Locale) FormatDateTime(t time.Time) string {
	return t.Format(l.dateTimeLayout)
}
