package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTeams(t *testing.T) {
	green, pink, err := parseTeams("green,pink")
	require.NoError(t, err)
	assert.True(t, green)
	assert.True(t, pink)

	green, pink, err = parseTeams(" Green ")
	require.NoError(t, err)
	assert.True(t, green)
	assert.False(t, pink)

	_, _, err = parseTeams("teal")
	require.Error(t, err)

	_, _, err = parseTeams("")
	require.Error(t, err)
}

func TestProgressLineCounters(t *testing.T) {
	p := newProgressLine()
	assert.Equal(t, 0, p.Chunks())
	assert.Equal(t, int64(0), p.Bytes())

	p.Record(120)
	p.Record(80)
	assert.Equal(t, 2, p.Chunks())
	assert.Equal(t, int64(200), p.Bytes())
}

func TestProgressLineStopIsIdempotent(t *testing.T) {
	p := newProgressLine()
	p.Start()
	p.Stop()
	p.Stop()
}
