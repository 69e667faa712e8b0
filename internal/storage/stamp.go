package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Stamp is a timestamp that also reads the zone-less ISO layout older data
// files were written with ("2024-05-01T10:00:00.123456", local time).
type Stamp struct{ time.Time }

var stampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func NewStamp(t time.Time) Stamp { return Stamp{t} }

func stampPtr(t time.Time) *Stamp { s := Stamp{t}; return &s }

func (s Stamp) MarshalJSON() ([]byte, error) {
	if s.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(s.Time.Format(time.RFC3339Nano))
}

func (s *Stamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		s.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("stamp: %w", err)
	}
	if raw == "" {
		s.Time = time.Time{}
		return nil
	}
	for _, layout := range stampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			s.Time = t
			return nil
		}
	}
	return fmt.Errorf("stamp: unrecognised time %q", raw)
}
