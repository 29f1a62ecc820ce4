// Package timex adds JSON support for durations so config files can say
// "5s" instead of 5000000000.
package timex

import (
	"encoding/json"
	"errors"
	"time"
)

// Duration wraps time.Duration. It unmarshals from either a Go duration
// string ("1m30s") or an integer number of nanoseconds, and marshals back
// to the string form.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}
