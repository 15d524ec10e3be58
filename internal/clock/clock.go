// Package clock renders the current instant for the time endpoint.
package clock

import (
	"time"
	_ "time/tzdata" // IANA names must resolve on minimal images

	"github.com/kjstillabower/weather-dashboard-api/internal/models"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Clock produces TimeRecords. Now is swappable for tests.
type Clock struct {
	Now         func() time.Time
	locale      Locale
	defaultZone *time.Location
}

// New returns a Clock formatting in locale; defaultZone is used when no
// timezone is requested or the requested one is unknown (nil means time.Local).
func New(locale Locale, defaultZone *time.Location) *Clock {
	if defaultZone == nil {
		defaultZone = time.Local
	}
	return &Clock{Now: time.Now, locale: locale, defaultZone: defaultZone}
}

// TimeRecord formats the current instant. An unknown timezone silently falls
// back to the default zone; the record still echoes the requested name.
// Without a timezone the record reports "UTC".
func (c *Clock) TimeRecord(timezone string) models.TimeRecord {
	now := c.Now()

	loc := c.defaultZone
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}

	name := timezone
	if name == "" {
		name = "UTC"
	}
	return models.TimeRecord{
		UTC:       now.UTC().Format(isoMillis),
		Local:     c.locale.FormatDateTime(now.In(loc)),
		Timestamp: now.UnixMilli(),
		Timezone:  name,
	}
}
