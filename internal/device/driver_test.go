package device

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	valid := RawPunch{UserID: " 42 ", VerifyMode: 1, InOutMode: 1, Year: 2025, Month: 2, Day: 28, Hour: 17, Minute: 30, Second: 5, WorkCode: 3}

	t.Run("converts a valid punch", func(t *testing.T) {
		record, err := Decode(1, valid, 9, 2, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, "42", record.BiometricUserID)
		assert.Equal(t, int64(9), record.DeviceID)
		assert.Equal(t, int64(2), record.BranchID)
		assert.Equal(t, time.Date(2025, time.February, 28, 17, 30, 5, 0, time.UTC), record.Time)
		assert.Equal(t, "Fingerprint", record.VerifyMethod)
		assert.Equal(t, "CheckOut", record.AttendanceType)
		assert.Equal(t, 3, record.WorkCode)
		assert.Equal(t, "42_9_20250228173005", record.Hash)
	})

	cases := map[string]func(p *RawPunch){
		"year before 2000": func(p *RawPunch) { p.Year = 1999 },
		"month 13":         func(p *RawPunch) { p.Month = 13 },
		"day zero":         func(p *RawPunch) { p.Day = 0 },
		"hour 24":          func(p *RawPunch) { p.Hour = 24 },
		"minute 60":        func(p *RawPunch) { p.Minute = 60 },
		"second negative":  func(p *RawPunch) { p.Second = -1 },
		"february 31":      func(p *RawPunch) { p.Day = 31 },
	}
	for name, mutate := range cases {
		t.Run("rejects "+name, func(t *testing.T) {
			raw := valid
			mutate(&raw)
			_, err := Decode(4, raw, 1, 1, time.UTC)
			var malformed *MalformedRecordError
			require.True(t, errors.As(err, &malformed), "expected MalformedRecordError, got %v", err)
			assert.Equal(t, 4, malformed.Index)
		})
	}
}

func TestDecodeAllSkipsMalformed(t *testing.T) {
	good := RawPunch{UserID: "1", Year: 2025, Month: 1, Day: 2, Hour: 8}
	bad := RawPunch{UserID: "2", Year: 1990, Month: 1, Day: 2, Hour: 8}

	records, skipped := DecodeAll([]RawPunch{good, bad, good}, 1, 1, time.UTC)
	assert.Len(t, records, 2)
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].Error(), "record 2")
}
