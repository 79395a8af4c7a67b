package observed

import (
	"time"

	"github.com/delaneyj/statesync/registry"
)

// Date wraps a *time.Time. Every setter notifies owners with the wrapper and
// returns the new time in Unix milliseconds. Out-of-range values normalize
// the way time.Date does.
type Date struct {
	handler
	raw *time.Time
}

func WrapDate(raw *time.Time, owner registry.Subscriber) (*Date, error) {
	if raw == nil {
		return nil, ErrNilObject
	}
	return wrapOnce(raw, owner, func(key identityKey) *Date {
		return &Date{handler: newHandler("date", key), raw: raw}
	})
}

func (d *Date) Raw() any { return d.raw }

func (d *Date) Time() time.Time { return *d.raw }

// GetTime returns the time in Unix milliseconds.
func (d *Date) GetTime() int64 { return d.raw.UnixMilli() }

type dateParts struct {
	year                int
	month               time.Month
	day, hour, min, sec int
	nsec                int
}

func partsOf(t time.Time) dateParts {
	y, mo, dd := t.Date()
	h, mi, s := t.Clock()
	return dateParts{year: y, month: mo, day: dd, hour: h, min: mi, sec: s, nsec: t.Nanosecond()}
}

// update edits the time as seen in loc, then restores the original location.
func (d *Date) update(op string, loc *time.Location, edit func(p *dateParts)) int64 {
	orig := d.raw.Location()
	p := partsOf(d.raw.In(loc))
	edit(&p)
	*d.raw = time.Date(p.year, p.month, p.day, p.hour, p.min, p.sec, p.nsec, loc).In(orig)
	d.notifyChanged(op, "", d)
	return d.raw.UnixMilli()
}

func (d *Date) local() *time.Location { return d.raw.Location() }

func (d *Date) SetFullYear(year int) int64 {
	return d.update("setFullYear", d.local(), func(p *dateParts) { p.year = year })
}

func (d *Date) SetMonth(month time.Month) int64 {
	return d.update("setMonth", d.local(), func(p *dateParts) { p.month = month })
}

func (d *Date) SetDate(day int) int64 {
	return d.update("setDate", d.local(), func(p *dateParts) { p.day = day })
}

func (d *Date) SetHours(hour int) int64 {
	return d.update("setHours", d.local(), func(p *dateParts) { p.hour = hour })
}

func (d *Date) SetMinutes(minute int) int64 {
	return d.update("setMinutes", d.local(), func(p *dateParts) { p.min = minute })
}

func (d *Date) SetSeconds(sec int) int64 {
	return d.update("setSeconds", d.local(), func(p *dateParts) { p.sec = sec })
}

func (d *Date) SetMilliseconds(ms int) int64 {
	return d.update("setMilliseconds", d.local(), func(p *dateParts) {
		p.nsec = ms * int(time.Millisecond)
	})
}

func (d *Date) SetUTCFullYear(year int) int64 {
	return d.update("setUTCFullYear", time.UTC, func(p *dateParts) { p.year = year })
}

func (d *Date) SetUTCMonth(month time.Month) int64 {
	return d.update("setUTCMonth", time.UTC, func(p *dateParts) { p.month = month })
}

func (d *Date) SetUTCDate(day int) int64 {
	return d.update("setUTCDate", time.UTC, func(p *dateParts) { p.day = day })
}

func (d *Date) SetUTCHours(hour int) int64 {
	return d.update("setUTCHours", time.UTC, func(p *dateParts) { p.hour = hour })
}

func (d *Date) SetUTCMinutes(minute int) int64 {
	return d.update("setUTCMinutes", time.UTC, func(p *dateParts) { p.min = minute })
}

func (d *Date) SetUTCSeconds(sec int) int64 {
	return d.update("setUTCSeconds", time.UTC, func(p *dateParts) { p.sec = sec })
}

func (d *Date) SetUTCMilliseconds(ms int) int64 {
	return d.update("setUTCMilliseconds", time.UTC, func(p *dateParts) {
		p.nsec = ms * int(time.Millisecond)
	})
}

// SetTime moves the date to ms Unix milliseconds, keeping its location.
func (d *Date) SetTime(ms int64) int64 {
	*d.raw = time.UnixMilli(ms).In(d.raw.Location())
	d.notifyChanged("setTime", "", d)
	return ms
}

func (d *Date) MarshalJSON() ([]byte, error) {
	if d.raw == nil {
		return []byte("null"), nil
	}
	return d.raw.MarshalJSON()
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var t time.Time
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	if d.raw == nil {
		d.raw = &t
		d.handler = newHandler("date", keyOf(d.raw))
		identities.store(d.key, d)
		return nil
	}
	*d.raw = t
	d.notifyChanged("unmarshal", "", d)
	return nil
}
