package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestExtensionScanLegacyNote(t *testing.T) {
	var e Extension
	require.NoError(t, e.Scan("Paid in cash, see front desk"))
	assert.Equal(t, "Paid in cash, see front desk", e.LegacyNote)

	v, err := e.Value()
	require.NoError(t, err)
	assert.Equal(t, "Paid in cash, see front desk", v, "legacy note must round trip verbatim")

	e.MergeLimits(Limits{AllowSharing: boolPtr(true)})
	v, err = e.Value()
	require.NoError(t, err)

	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(v.(string)), &stored))
	assert.Equal(t, "Paid in cash, see front desk", stored["legacy_note"])
	assert.Equal(t, float64(ExtensionVersion), stored["version"])
	assert.Equal(t, true, stored["limits"].(map[string]any)["allow_sharing"])
}

func TestExtensionPreservesUnknownKeys(t *testing.T) {
	var e Extension
	require.NoError(t, e.Scan([]byte(`{"version":1,"referral":{"code":"FRIEND"},"limits":{"hold_days":14}}`)))

	e.MergeLimits(Limits{AllowHolds: boolPtr(false)})
	e.AppendHold(HoldEntry{ID: "h1", StartDate: "2026-01-01", EndDate: "2026-01-08", DurationDays: 7})

	v, err := e.Value()
	require.NoError(t, err)

	var back Extension
	require.NoError(t, back.Scan(v))
	require.NotNil(t, back.Limits)
	assert.Equal(t, 14, *back.Limits.HoldDays)
	assert.False(t, *back.Limits.AllowHolds)
	require.Len(t, back.Holds, 1)
	require.NotNil(t, back.HoldInfo)
	assert.Equal(t, "h1", back.HoldInfo.ID)
	assert.JSONEq(t, `{"code":"FRIEND"}`, string(back.extra["referral"]))
}

func TestExtensionHoldInfoKey(t *testing.T) {
	var e Extension
	e.AppendHold(HoldEntry{ID: "h1", StartDate: "2026-01-01", EndDate: "2026-01-08"})
	v, err := e.Value()
	require.NoError(t, err)

	var stored map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(v.(string)), &stored))
	assert.Contains(t, stored, "holdInfo")
	assert.NotContains(t, stored, "hold_info")

	var old Extension
	require.NoError(t, old.Scan(`{"holds":[{"id":"h0","start_date":"2025-12-01","end_date":"2025-12-05"}],"hold_info":{"id":"h0","start_date":"2025-12-01","end_date":"2025-12-05"}}`))
	require.NotNil(t, old.HoldInfo)
	assert.Equal(t, "h0", old.HoldInfo.ID)
	assert.Empty(t, old.extra)

	old.AppendHold(HoldEntry{ID: "h1", StartDate: "2026-01-01", EndDate: "2026-01-08"})
	v, err = old.Value()
	require.NoError(t, err)
	stored = nil
	require.NoError(t, json.Unmarshal([]byte(v.(string)), &stored))
	assert.NotContains(t, stored, "hold_info")
	assert.Contains(t, string(stored["holdInfo"]), `"h1"`)
}

func TestExtensionEmpty(t *testing.T) {
	var e Extension
	require.NoError(t, e.Scan(nil))
	v, err := e.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestExtensionHoldHistoryIsAppendOnly(t *testing.T) {
	var e Extension
	e.AppendHold(HoldEntry{ID: "a", StartDate: "2026-01-01", EndDate: "2026-01-05"})
	e.AppendHold(HoldEntry{ID: "b", StartDate: "2026-02-01", EndDate: "2026-02-05"})

	require.Len(t, e.Holds, 2)
	assert.Equal(t, "b", e.HoldInfo.ID)

	resumed := e.Holds[1]
	resumed.ResumedOn = "2026-02-03"
	e.ReplaceHold(resumed)
	assert.Equal(t, "2026-02-03", e.Holds[1].ResumedOn)
	assert.Equal(t, "2026-02-03", e.HoldInfo.ResumedOn)
	assert.Empty(t, e.Holds[0].ResumedOn)
}

func TestHoldEntryCoversIsEndExclusive(t *testing.T) {
	h := HoldEntry{StartDate: "2026-05-01", EndDate: "2026-05-08"}
	assert.True(t, h.Covers(*date(2026, 5, 1)))
	assert.True(t, h.Covers(*date(2026, 5, 7)))
	assert.False(t, h.Covers(*date(2026, 5, 8)))
	assert.False(t, h.Covers(*date(2026, 4, 30)))

	assert.True(t, h.Overlaps(*date(2026, 5, 7), *date(2026, 5, 20)))
	assert.False(t, h.Overlaps(*date(2026, 5, 8), *date(2026, 5, 20)))

	h.ResumedOn = "2026-05-03"
	assert.False(t, h.Covers(*date(2026, 5, 4)))

	var e Extension
	e.AppendHold(HoldEntry{ID: "x", StartDate: "2026-05-01", EndDate: "2026-05-08"})
	cur, ok := e.CurrentHold(*date(2026, 5, 2))
	require.True(t, ok)
	assert.Equal(t, "x", cur.ID)
	_, ok = e.LatestOpenHold()
	assert.True(t, ok)
}
