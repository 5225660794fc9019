package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cfgpkg "github.com/taoyao-code/scent-server/internal/config"
	"github.com/taoyao-code/scent-server/internal/transport"
	"go.uber.org/zap"
)

func TestReport(t *testing.T) {
	found := []transport.Peripheral{
		{Name: "", Address: "00:00:00:00:00:01", RSSI: -30},
		{Name: "Phone", Address: "00:00:00:00:00:02", RSSI: -80},
		{Name: "WEAR-01", Address: "00:00:00:00:00:03", RSSI: -50},
	}

	var buf bytes.Buffer
	n := report(&buf, found, "wear", false)

	assert.Equal(t, 1, n)
	out := buf.String()
	assert.Contains(t, out, "found 3 device(s), 2 with names")
	assert.NotContains(t, out, "00:00:00:00:00:01")
	assert.Less(t, strings.Index(out, "WEAR-01"), strings.Index(out, "Phone"), "stronger signal first")
	assert.Contains(t, out, `<- matches "wear"`)
}

func TestReport_AllAndNoMatch(t *testing.T) {
	found := []transport.Peripheral{
		{Name: "", Address: "00:00:00:00:00:01", RSSI: -30},
		{Name: "Phone", Address: "00:00:00:00:00:02", RSSI: -80},
	}

	var buf bytes.Buffer
	n := report(&buf, found, "wear", true)

	assert.Equal(t, 0, n)
	out := buf.String()
	assert.Contains(t, out, "(unknown)")
	assert.Less(t, strings.Index(out, "Phone"), strings.Index(out, "(unknown)"), "named devices first")
	assert.Contains(t, out, "no device name contains")
}

func TestRun(t *testing.T) {
	simCfg := func(name string) *cfgpkg.Config {
		return &cfgpkg.Config{Transport: cfgpkg.TransportConfig{
			Driver: "simulator",
			Simulator: cfgpkg.SimulatorConfig{
				Peripherals: []cfgpkg.SimulatedPeripheral{{Name: name, Address: "AA:BB:CC:DD:EE:01", RSSI: -45}},
			},
		}}
	}

	t.Run("match", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := run(&buf, simCfg("Wear-Sim"), zap.NewNop(), 10*time.Millisecond, "wear", false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Contains(t, buf.String(), "AA:BB:CC:DD:EE:01")
	})

	t.Run("no match", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := run(&buf, simCfg("Phone"), zap.NewNop(), 10*time.Millisecond, "wear", false)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("transport error is returned", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := run(&buf, &cfgpkg.Config{Transport: cfgpkg.TransportConfig{Driver: "usb"}}, zap.NewNop(), time.Millisecond, "wear", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport unavailable")
		assert.Empty(t, buf.String())
	})
}
