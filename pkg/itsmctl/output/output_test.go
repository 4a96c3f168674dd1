package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pinNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := Now
	Now = func() time.Time { return at }
	t.Cleanup(func() { Now = prev })
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"WIDE", FormatWide, false},
		{" json ", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.True(t, FormatJSON.Structured())
	assert.False(t, FormatWide.Structured())
}

func TestWriteObject(t *testing.T) {
	obj := map[string]any{"name": "VPN", "id": 3}

	var buf bytes.Buffer
	require.NoError(t, WriteObject(&buf, FormatJSON, obj))
	assert.JSONEq(t, `{"name":"VPN","id":3}`, buf.String())

	buf.Reset()
	require.NoError(t, WriteObject(&buf, FormatYAML, obj))
	assert.Equal(t, "id: 3\nname: VPN\n", buf.String())

	require.Error(t, WriteObject(&buf, FormatTable, obj))
	require.Error(t, WriteObject(&buf, FormatWide, obj))
	require.Error(t, WriteObject(&buf, Format("csv"), obj))
}

func TestAge(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	pinNow(t, now)

	assert.Equal(t, "-", Age(time.Time{}))
	assert.Equal(t, "-", AgePtr(nil))
	assert.Equal(t, "3 hours ago", Age(now.Add(-3*time.Hour)))
	due := now.Add(48 * time.Hour)
	assert.Equal(t, "2 days from now", AgePtr(&due))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "-", dash(""))
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "99.5%", Percent(99.5))
	assert.Equal(t, "12,345", Count(12345))
	assert.Equal(t, "-", userRef(0))
	assert.Equal(t, "#7", userRef(7))
}
