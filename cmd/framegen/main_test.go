package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	tests := []struct {
		in      string
		ch      uint8
		dur     int
		wantErr bool
	}{
		{"1:5", 1, 5, false},
		{"12:60", 12, 60, false},
		{"1-5", 0, 0, true},
		{"300:5", 0, 0, true},
		{"1:x", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ch, dur, err := parsePair(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ch, ch)
			assert.Equal(t, tt.dur, dur)
		})
	}
}

func TestRunGenerate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runGenerate(&buf, []string{"1:5", "12:60"}))
	assert.Equal(t,
		"scent 1, 5s -> F500000001020501000013882BD455\n"+
			"scent 12, 60s -> F50000000102050C0000EA60F4BB55\n",
		buf.String())
}

func TestRunVerify(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runVerify(&buf))
	assert.NotContains(t, buf.String(), "MISMATCH")
}

func TestRunParse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runParse(&buf, "F5 00 00 00 01 02 05 03 00 00 13 88 EB AD 55"))
	assert.Equal(t, "channel=3 duration_ms=5000 (5s) crc=ok\n", buf.String())

	assert.Error(t, runParse(&buf, "F500000001020501000013882BD555"), "corrupted crc")
	assert.Error(t, runParse(&buf, "zz"))
}
