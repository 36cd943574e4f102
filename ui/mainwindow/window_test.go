package mainwindow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOutputName(t *testing.T) {
	assert.Equal(t, "out.png", defaultOutputName(""))
	assert.Equal(t, "board.png", defaultOutputName("/work/in/board.gbr"))
	assert.Equal(t, "chip.png", defaultOutputName("chip.gds"))
	assert.Equal(t, "art.png", defaultOutputName("/tmp/art.png"))
}

func TestParseGeometry(t *testing.T) {
	geom, err := parseGeometry("13312", "5120", "223.642", "126.48")
	require.NoError(t, err)
	assert.Equal(t, 13312, geom.PixelWidth)
	assert.Equal(t, 5120, geom.PixelHeight)
	assert.InDelta(t, 223.642, geom.WidthMM, 1e-9)
	assert.InDelta(t, 126.48, geom.HeightMM, 1e-9)

	_, err = parseGeometry("wide", "5120", "223.642", "126.48")
	assert.Error(t, err)
	_, err = parseGeometry("13312", "5120", "", "126.48")
	assert.Error(t, err)
}
