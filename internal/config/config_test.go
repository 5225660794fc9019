package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  env: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "scent-server", cfg.App.Name)
	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "wear", cfg.Device.NameKeyword)
	assert.Equal(t, 10*time.Second, cfg.Device.ScanTimeout)
	assert.Equal(t, 5*time.Second, cfg.Device.ProbeTimeout)
	assert.Equal(t, 10*time.Second, cfg.Device.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.Device.TestConnectTimeout)
	assert.Equal(t, "bluez", cfg.Transport.Driver)
	assert.Equal(t, "hci0", cfg.Transport.Adapter)
	assert.Equal(t, "memory", cfg.Session.Lock)
	assert.Equal(t, 5*time.Minute, cfg.Session.LockWaitTimeout)
	assert.Equal(t, []string{"*"}, cfg.API.CORS.AllowOrigins)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
device:
  nameKeyword: scentband
  scanTimeout: 3s
transport:
  driver: simulator
  simulator:
    latency: 10ms
    peripherals:
      - name: ScentBand-1
        address: "AA:BB:CC:DD:EE:FF"
        rssi: -40
`)
	t.Setenv("SCENT_HTTP_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "scentband", cfg.Device.NameKeyword)
	assert.Equal(t, 3*time.Second, cfg.Device.ScanTimeout)
	assert.Equal(t, "simulator", cfg.Transport.Driver)
	require.Len(t, cfg.Transport.Simulator.Peripherals, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Transport.Simulator.Peripherals[0].Address)
	assert.Equal(t, int16(-40), cfg.Transport.Simulator.Peripherals[0].RSSI)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestLoad_ConfigEnvPath(t *testing.T) {
	path := writeConfig(t, "app:\n  name: from-env-path\n")
	t.Setenv("SCENT_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env-path", cfg.App.Name)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "transport:\n  driver: usb\n"},
		{"unknown lock", "session:\n  lock: etcd\n"},
		{"redis lock without redis", "session:\n  lock: redis\n"},
		{"auth without credentials", "api:\n  auth:\n    enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
