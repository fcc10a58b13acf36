package refclock

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Basic(t *testing.T) {
	doc := `
units:
  - station: wwv
    unit: 0
    fudgetime1: 0.0022
    fudgetime2: 0.0013
    gain: 110
  - station: irig
    unit: 1
    fudgetime2: 1.5
`
	cfg, err := LoadConfig(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, cfg.Units, 2)

	assert.Equal(t, StationWWV, cfg.Units[0].Station)
	assert.Equal(t, 0, cfg.Units[0].Unit)
	assert.InDelta(t, 0.0022, cfg.Units[0].Fudgetime1, 1e-9)
	assert.Equal(t, 110, cfg.Units[0].Gain)

	assert.Equal(t, StationIRIG, cfg.Units[1].Station)
	assert.InDelta(t, 1.5, cfg.Units[1].Fudgetime2, 1e-9)
}

func TestLoadConfig_NoUnits(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("units: []"))
	assert.ErrorIs(t, err, ErrNoUnits)
}

func TestLoadConfig_UnknownStation(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("units:\n  - station: foo\n    unit: 0\n"))
	assert.Error(t, err)
}

func TestLoadConfig_UnitOutOfRange(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("units:\n  - station: chu\n    unit: 99\n"))
	assert.Error(t, err)
}

func TestLoadConfig_Malformed(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("units: [this is not valid yaml: ["))
	assert.Error(t, err)
}
