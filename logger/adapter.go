package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// eventAdapter adapts a zerolog event to LogEvent. zerolog returns a nil
// event for disabled levels and every method below is nil-safe on it.
type eventAdapter struct {
	event  *zerolog.Event
	filter *SensitiveDataFilter
}

func (a *eventAdapter) Msg(msg string) {
	a.event.Msg(msg)
}

func (a *eventAdapter) Msgf(format string, args ...any) {
	a.event.Msgf(format, args...)
}

func (a *eventAdapter) Err(err error) LogEvent {
	a.event = a.event.Err(err)
	return a
}

func (a *eventAdapter) Str(key, value string) LogEvent {
	if a.filter != nil {
		value = a.filter.FilterString(key, value)
	}
	a.event = a.event.Str(key, value)
	return a
}

func (a *eventAdapter) Int(key string, value int) LogEvent {
	a.event = a.event.Int(key, value)
	return a
}

func (a *eventAdapter) Int64(key string, value int64) LogEvent {
	a.event = a.event.Int64(key, value)
	return a
}

func (a *eventAdapter) Bool(key string, value bool) LogEvent {
	a.event = a.event.Bool(key, value)
	return a
}

func (a *eventAdapter) Dur(key string, d time.Duration) LogEvent {
	a.event = a.event.Dur(key, d)
	return a
}

func (a *eventAdapter) Interface(key string, i any) LogEvent {
	if a.filter != nil {
		i = a.filter.FilterValue(key, i)
	}
	a.event = a.event.Interface(key, i)
	return a
}

func (a *eventAdapter) Bytes(key string, val []byte) LogEvent {
	a.event = a.event.Bytes(key, val)
	return a
}
