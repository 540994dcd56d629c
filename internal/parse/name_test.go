package parse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestEquipmentCode(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  string
		expectErr bool
	}{
		{name: "Current year", raw: "EQ-2024-0001", expected: "EQ-2024-0001"},
		{name: "Oldest accepted year", raw: "EQ-2019-1234", expected: "EQ-2019-1234"},
		{name: "Surrounding spaces", raw: "  EQ-2022-0042 ", expected: "EQ-2022-0042"},
		{name: "Too old", raw: "EQ-2018-0001", expectErr: true},
		{name: "Future year", raw: "EQ-2025-0001", expectErr: true},
		{name: "Lowercase prefix", raw: "eq-2024-0001", expectErr: true},
		{name: "Short sequence", raw: "EQ-2024-001", expectErr: true},
		{name: "Trailing garbage", raw: "EQ-2024-00012", expectErr: true},
		{name: "Empty", raw: "", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, err := EquipmentCode(tc.raw, now)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, code)
		})
	}
}

func TestEquipmentName(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  string
		expectErr bool
	}{
		{name: "Simple", raw: "Bomba 1", expected: "Bomba 1"},
		{name: "Dashes and underscores", raw: "Motor_A-2", expected: "Motor_A-2"},
		{name: "Trimmed", raw: "  Turbina  ", expected: "Turbina"},
		{name: "Too short", raw: "ab", expectErr: true},
		{name: "Too long", raw: strings.Repeat("a", 101), expectErr: true},
		{name: "Accented letters", raw: "Compresión", expectErr: true},
		{name: "Punctuation", raw: "Bomba #1", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			name, err := EquipmentName(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, name)
		})
	}
}

func TestEquipmentType(t *testing.T) {
	for _, typ := range EquipmentTypes {
		got, err := EquipmentType(typ)
		assert.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	got, err := EquipmentType(" Bomba ")
	assert.NoError(t, err)
	assert.Equal(t, "bomba", got)

	_, err = EquipmentType("ventilador")
	assert.Error(t, err)
}

func TestInstallDate(t *testing.T) {
	assert.NoError(t, InstallDate(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), now))
	assert.Error(t, InstallDate(now.Add(time.Hour), now))
	assert.Error(t, InstallDate(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), now))
}

func TestEquipment(t *testing.T) {
	installed := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	in, err := Equipment(EquipmentInput{
		Code:        "EQ-2023-0007",
		Name:        " Bomba Principal ",
		Type:        "BOMBA",
		Location:    " Planta A ",
		InstalledAt: &installed,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "Bomba Principal", in.Name)
	assert.Equal(t, "bomba", in.Type)
	assert.Equal(t, "Planta A", in.Location)

	_, err = Equipment(EquipmentInput{
		Code:        "EQ-1999-0001",
		Name:        "x",
		Type:        "ventilador",
		Description: strings.Repeat("d", 501),
	}, now)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 5)
	for _, field := range []string{"code", "name", "type", "location", "description"} {
		assert.Contains(t, verr.Fields, field)
	}
	assert.True(t, strings.HasPrefix(err.Error(), "invalid input: code:"))
}
