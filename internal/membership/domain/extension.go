package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gymstack/gymstack/internal/calendar"
)

// ExtensionVersion is written into every encoded extension.
const ExtensionVersion = 1

const (
	extKeyVersion    = "version"
	extKeyLimits     = "limits"
	extKeyHolds      = "holds"
	extKeyHoldInfo   = "holdInfo"
	extKeyLegacyNote = "legacy_note"

	// Rows written before the pointer key was renamed.
	extKeyHoldInfoOld = "hold_info"
)

// Limits are staff-managed toggles. Nil fields are unset.
type Limits struct {
	AllowSharing         *bool `json:"allow_sharing,omitempty"`
	AllowHolds           *bool `json:"allow_holds,omitempty"`
	NumberOfHoldsAllowed *int  `json:"number_of_holds_allowed,omitempty"`
	HoldDays             *int  `json:"hold_days,omitempty"`
}

// HoldEntry records one freeze window. EndDate is the resume date and is
// not a held day.
type HoldEntry struct {
	ID           string    `json:"id"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	DurationDays int       `json:"duration_days"`
	Reason       string    `json:"reason,omitempty"`
	AutoResume   bool      `json:"auto_resume"`
	ResumedOn    string    `json:"resumed_on,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h HoldEntry) Window() (time.Time, time.Time, error) {
	start, err := calendar.ParseDate(h.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := calendar.ParseDate(h.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// Covers reports whether today falls in [start, end) of an unresumed hold.
func (h HoldEntry) Covers(today time.Time) bool {
	if h.ResumedOn != "" {
		return false
	}
	start, end, err := h.Window()
	if err != nil {
		return false
	}
	return !today.Before(start) && today.Before(end)
}

// Overlaps reports whether an unresumed hold shares a day with [start, end).
func (h HoldEntry) Overlaps(start, end time.Time) bool {
	if h.ResumedOn != "" {
		return false
	}
	hs, he, err := h.Window()
	if err != nil {
		return false
	}
	return start.Before(he) && hs.Before(end)
}

// Extension is the structured note column of a membership. Keys this
// version does not know are carried through untouched, and a note that was
// never JSON is kept verbatim under legacy_note.
type Extension struct {
	Limits     *Limits
	Holds      []HoldEntry
	HoldInfo   *HoldEntry
	LegacyNote string

	extra map[string]json.RawMessage
}

func (e Extension) hasStructured() bool {
	return e.Limits != nil || len(e.Holds) > 0 || e.HoldInfo != nil || len(e.extra) > 0
}

// MergeLimits overwrites only the toggles set in l.
func (e *Extension) MergeLimits(l Limits) {
	if e.Limits == nil {
		e.Limits = &Limits{}
	}
	if l.AllowSharing != nil {
		e.Limits.AllowSharing = l.AllowSharing
	}
	if l.AllowHolds != nil {
		e.Limits.AllowHolds = l.AllowHolds
	}
	if l.NumberOfHoldsAllowed != nil {
		e.Limits.NumberOfHoldsAllowed = l.NumberOfHoldsAllowed
	}
	if l.HoldDays != nil {
		e.Limits.HoldDays = l.HoldDays
	}
}

// AppendHold adds h to the history and points HoldInfo at it.
func (e *Extension) AppendHold(h HoldEntry) {
	e.Holds = append(e.Holds, h)
	latest := h
	e.HoldInfo = &latest
}

// ReplaceHold updates the stored entry with h.ID.
func (e *Extension) ReplaceHold(h HoldEntry) {
	for i := range e.Holds {
		if e.Holds[i].ID == h.ID {
			e.Holds[i] = h
		}
	}
	if e.HoldInfo != nil && e.HoldInfo.ID == h.ID {
		latest := h
		e.HoldInfo = &latest
	}
}

// CurrentHold returns the latest unresumed hold covering today.
func (e Extension) CurrentHold(today time.Time) (HoldEntry, bool) {
	for i := len(e.Holds) - 1; i >= 0; i-- {
		if e.Holds[i].Covers(today) {
			return e.Holds[i], true
		}
	}
	return HoldEntry{}, false
}

// LatestOpenHold returns the most recent hold that has not been resumed.
func (e Extension) LatestOpenHold() (HoldEntry, bool) {
	for i := len(e.Holds) - 1; i >= 0; i-- {
		if e.Holds[i].ResumedOn == "" {
			return e.Holds[i], true
		}
	}
	return HoldEntry{}, false
}

func (e Extension) OverlapsHold(start, end time.Time) bool {
	for _, h := range e.Holds {
		if h.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (e Extension) encode() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(e.extra)+5)
	for k, v := range e.extra {
		out[k] = v
	}

	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode extension %s: %w", key, err)
		}
		out[key] = raw
		return nil
	}

	if err := put(extKeyVersion, ExtensionVersion); err != nil {
		return nil, err
	}
	if e.Limits != nil {
		if err := put(extKeyLimits, e.Limits); err != nil {
			return nil, err
		}
	}
	if len(e.Holds) > 0 {
		if err := put(extKeyHolds, e.Holds); err != nil {
			return nil, err
		}
	}
	if e.HoldInfo != nil {
		if err := put(extKeyHoldInfo, e.HoldInfo); err != nil {
			return nil, err
		}
	}
	if e.LegacyNote != "" {
		if err := put(extKeyLegacyNote, e.LegacyNote); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Extension) decode(raw []byte) error {
	*e = Extension{}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	var fields map[string]json.RawMessage
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &fields) != nil {
		e.LegacyNote = string(raw)
		return nil
	}

	take := func(key string, dst any) error {
		v, ok := fields[key]
		if !ok {
			return nil
		}
		delete(fields, key)
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("decode extension %s: %w", key, err)
		}
		return nil
	}

	var version int
	if err := take(extKeyVersion, &version); err != nil {
		return err
	}
	if err := take(extKeyLimits, &e.Limits); err != nil {
		return err
	}
	if err := take(extKeyHolds, &e.Holds); err != nil {
		return err
	}
	if err := take(extKeyHoldInfo, &e.HoldInfo); err != nil {
		return err
	}
	var oldHoldInfo *HoldEntry
	if err := take(extKeyHoldInfoOld, &oldHoldInfo); err != nil {
		return err
	}
	if e.HoldInfo == nil {
		e.HoldInfo = oldHoldInfo
	}
	if err := take(extKeyLegacyNote, &e.LegacyNote); err != nil {
		return err
	}
	if len(fields) > 0 {
		e.extra = fields
	}
	return nil
}

func (e Extension) MarshalJSON() ([]byte, error) {
	if !e.hasStructured() && e.LegacyNote == "" {
		return []byte("{}"), nil
	}
	fields, err := e.encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func (e *Extension) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*e = Extension{}
		return nil
	}
	return e.decode(data)
}

// Value stores NULL for an empty extension and the legacy text verbatim
// until structured data is first written.
func (e Extension) Value() (driver.Value, error) {
	if !e.hasStructured() {
		if e.LegacyNote == "" {
			return nil, nil
		}
		return e.LegacyNote, nil
	}
	fields, err := e.encode()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (e *Extension) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*e = Extension{}
		return nil
	case string:
		return e.decode([]byte(v))
	case []byte:
		return e.decode(v)
	default:
		return fmt.Errorf("unsupported extension column type %T", value)
	}
}
