package bluez

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoyao-code/scent-server/internal/transport"
	"go.uber.org/zap"
)

func TestDevicePath(t *testing.T) {
	tr := &Transport{adapterPath: "/org/bluez/hci0"}

	tests := []struct {
		address  string
		expected dbus.ObjectPath
	}{
		{"FC:28:F7:A3:F5:47", "/org/bluez/hci0/dev_FC_28_F7_A3_F5_47"},
		{"fc:28:f7:a3:f5:47", "/org/bluez/hci0/dev_FC_28_F7_A3_F5_47"},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.expected, tr.devicePath(tt.address))
		})
	}
}

func TestIsDBusError(t *testing.T) {
	inProgress := dbus.Error{Name: "org.bluez.Error.InProgress"}

	assert.True(t, isDBusError(inProgress, "org.bluez.Error.InProgress"))
	assert.True(t, isDBusError(&inProgress, "org.bluez.Error.InProgress"))
	assert.False(t, isDBusError(inProgress, "org.bluez.Error.Failed"))
	assert.False(t, isDBusError(errors.New("boom"), "org.bluez.Error.InProgress"))
}

func TestDiscovered(t *testing.T) {
	dev := func(addr, name string, rssi *int16) map[string]map[string]dbus.Variant {
		props := map[string]dbus.Variant{"Address": dbus.MakeVariant(addr)}
		if name != "" {
			props["Name"] = dbus.MakeVariant(name)
		}
		if rssi != nil {
			props["RSSI"] = dbus.MakeVariant(*rssi)
		}
		return map[string]map[string]dbus.Variant{ifaceDevice: props}
	}
	rssi := func(v int16) *int16 { return &v }

	objects := managedObjects{
		"/org/bluez/hci0/dev_AA_00_00_00_00_01": dev("AA:00:00:00:00:01", "Wear-Far", rssi(-80)),
		"/org/bluez/hci0/dev_AA_00_00_00_00_02": dev("AA:00:00:00:00:02", "Wear-Near", rssi(-40)),
		// 早先会话缓存、本次未广播
		"/org/bluez/hci0/dev_AA_00_00_00_00_03": dev("AA:00:00:00:00:03", "Wear-Cached", nil),
		"/org/bluez/hci0/dev_AA_00_00_00_00_04": dev("AA:00:00:00:00:04", "", rssi(-60)),
		"/org/bluez/hci0/dev_AA_00_00_00_00_05": dev("AA:00:00:00:00:05", "Wear-Tie", rssi(-80)),
		// 其他适配器
		"/org/bluez/hci1/dev_BB_00_00_00_00_01": dev("BB:00:00:00:00:01", "Wear-Other", rssi(-30)),
		"/org/bluez/hci0": {ifaceAdapter: {"Powered": dbus.MakeVariant(true)}},
	}

	for i := 0; i < 5; i++ {
		got := discovered(objects, "/org/bluez/hci0")
		assert.Equal(t, []transport.Peripheral{
			{Name: "Wear-Near", Address: "AA:00:00:00:00:02", RSSI: -40},
			{Address: "AA:00:00:00:00:04", RSSI: -60},
			{Name: "Wear-Far", Address: "AA:00:00:00:00:01", RSSI: -80},
			{Name: "Wear-Tie", Address: "AA:00:00:00:00:05", RSSI: -80},
		}, got)
	}
}

type busRecord struct {
	method      string
	path        dbus.ObjectPath
	ctxErr      error
	hasDeadline bool
}

// fakeBus 记录方法调用；Connect 的行为由 connect 决定，其余调用返回 err
type fakeBus struct {
	mu      sync.Mutex
	calls   []busRecord
	connect func(ctx context.Context) error
	err     error
}

func (b *fakeBus) call(ctx context.Context, path dbus.ObjectPath, method string, _ ...interface{}) *dbus.Call {
	_, hasDeadline := ctx.Deadline()
	b.mu.Lock()
	b.calls = append(b.calls, busRecord{method: method, path: path, ctxErr: ctx.Err(), hasDeadline: hasDeadline})
	b.mu.Unlock()

	if method == ifaceDevice+".Connect" && b.connect != nil {
		return &dbus.Call{Err: b.connect(ctx)}
	}
	return &dbus.Call{Err: b.err}
}

func (b *fakeBus) disconnects() []busRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []busRecord
	for _, c := range b.calls {
		if c.method == ifaceDevice+".Disconnect" {
			out = append(out, c)
		}
	}
	return out
}

func TestConnect_FailureDisconnects(t *testing.T) {
	tests := []struct {
		name    string
		bus     *fakeBus
		timeout bool
	}{
		{
			name: "connect call times out",
			bus: &fakeBus{connect: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}},
			timeout: true,
		},
		{
			name:    "connect call fails",
			bus:     &fakeBus{connect: func(context.Context) error { return errors.New("org.bluez.Error.Failed") }},
			timeout: false,
		},
		{
			name:    "services never resolved",
			bus:     &fakeBus{connect: func(context.Context) error { return nil }, err: errors.New("no property")},
			timeout: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &Transport{
				call:         tt.bus.call,
				adapterPath:  "/org/bluez/hci0",
				pollInterval: time.Millisecond,
				logger:       zap.NewNop(),
			}

			c, err := tr.Connect(context.Background(), "FC:28:F7:A3:F5:47", 20*time.Millisecond)

			require.Error(t, err)
			assert.Nil(t, c)
			if tt.timeout {
				assert.ErrorIs(t, err, transport.ErrTimeout)
			}
			ds := tt.bus.disconnects()
			require.Len(t, ds, 1)
			assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0/dev_FC_28_F7_A3_F5_47"), ds[0].path)
			assert.NoError(t, ds[0].ctxErr, "cleanup must not reuse the expired context")
			assert.True(t, ds[0].hasDeadline)
		})
	}
}

func TestConnect_CallerCanceled(t *testing.T) {
	bus := &fakeBus{connect: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	tr := &Transport{call: bus.call, adapterPath: "/org/bluez/hci0", pollInterval: time.Millisecond, logger: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := tr.Connect(ctx, "FC:28:F7:A3:F5:47", time.Second)

	require.Error(t, err)
	assert.False(t, errors.Is(err, transport.ErrTimeout))
	require.Len(t, bus.disconnects(), 1)
	assert.NoError(t, bus.disconnects()[0].ctxErr)
}
