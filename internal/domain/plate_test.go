package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePlate_Accepts(t *testing.T) {
	cases := []struct {
		raw  string
		want Plate
	}{
		{"ABC-1234", "ABC-1234"},
		{"abc-1234", "ABC-1234"},
		{"  xy99 ", "XY99"},
		{"車A1", "車A1"},
		{"臺北-a", "臺北-A"},
		{"-", "-"},
	}
	for _, tc := range cases {
		got, err := ValidatePlate(tc.raw)
		require.NoError(t, err, "raw=%q", tc.raw)
		require.Equal(t, tc.want, got, "raw=%q", tc.raw)
	}
}

func TestValidatePlate_Rejects(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"車A#1",
		"AB 12",
		"ÄBC",
		"ＡＢＣ",
		"AB_12",
		"ㄅㄆ",
		"한글",
	}
	for _, raw := range cases {
		_, err := ValidatePlate(raw)
		require.ErrorIs(t, err, ErrInvalidPlate, "raw=%q", raw)
	}
}

func TestValidatePlate_NoLengthBound(t *testing.T) {
	raw := strings.Repeat("a", 500)
	got, err := ValidatePlate(raw)
	require.NoError(t, err)
	require.Len(t, got.String(), 500)
	require.Equal(t, strings.Repeat("A", 500), got.String())
}

func TestParseVehicleCode(t *testing.T) {
	v, ok := ParseVehicleCode("C")
	require.True(t, ok)
	require.Equal(t, VehicleCar, v)
	require.Equal(t, "C", v.Code())

	v, ok = ParseVehicleCode("M")
	require.True(t, ok)
	require.Equal(t, VehicleMotorcycle, v)
	require.Equal(t, "M", v.Code())

	_, ok = ParseVehicleCode("c")
	require.False(t, ok)
}

func TestReportText(t *testing.T) {
	r := Report{Header: "h", Sections: []string{"a", "b"}}
	require.Equal(t, "h\n\na\n\nb", r.Text())
}
