// Package bluez 基于系统 D-Bus 上的 BlueZ 实现 BLE 传输（Linux）
package bluez

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/taoyao-code/scent-server/internal/transport"
	"go.uber.org/zap"
)

const (
	busName = "org.bluez"

	ifaceAdapter        = "org.bluez.Adapter1"
	ifaceDevice         = "org.bluez.Device1"
	ifaceCharacteristic = "org.bluez.GattCharacteristic1"

	methodGetManagedObjects = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"

	// 放弃连接后的清理断开上限
	abortTimeout = 3 * time.Second
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// callFunc 对 org.bluez 下的对象发起方法调用
type callFunc func(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) *dbus.Call

// Transport BlueZ 传输
type Transport struct {
	conn         *dbus.Conn
	call         callFunc
	adapterPath  dbus.ObjectPath
	pollInterval time.Duration
	logger       *zap.Logger
}

// New 连接系统总线并绑定到指定适配器（如 hci0）
func New(adapter string, logger *zap.Logger) (*Transport, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	if adapter == "" {
		adapter = "hci0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		conn:         conn,
		call:         busCall(conn),
		adapterPath:  dbus.ObjectPath("/org/bluez/" + adapter),
		pollInterval: 200 * time.Millisecond,
		logger:       logger,
	}, nil
}

func busCall(conn *dbus.Conn) callFunc {
	return func(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) *dbus.Call {
		return conn.Object(busName, path).CallWithContext(ctx, method, 0, args...)
	}
}

// Close 关闭 D-Bus 连接
func (t *Transport) Close() error {
	return t.conn.Close()
}

// AdapterPowered 适配器是否存在且已上电
func (t *Transport) AdapterPowered(ctx context.Context) (bool, error) {
	v, err := t.property(ctx, t.adapterPath, ifaceAdapter, "Powered")
	if err != nil {
		return false, err
	}
	powered, _ := v.Value().(bool)
	return powered, nil
}

// Scan 开启发现，等待 timeout 后枚举适配器下的设备
func (t *Transport) Scan(ctx context.Context, timeout time.Duration) ([]transport.Peripheral, error) {
	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("le")}
	if err := t.call(ctx, t.adapterPath, ifaceAdapter+".SetDiscoveryFilter", filter).Err; err != nil {
		t.logger.Debug("set discovery filter failed", zap.Error(err))
	}
	if err := t.call(ctx, t.adapterPath, ifaceAdapter+".StartDiscovery").Err; err != nil {
		// 已在扫描中时 BlueZ 返回 InProgress，可继续
		if !isDBusError(err, "org.bluez.Error.InProgress") {
			return nil, fmt.Errorf("start discovery: %w", err)
		}
	}
	defer func() {
		if err := t.call(context.Background(), t.adapterPath, ifaceAdapter+".StopDiscovery").Err; err != nil {
			t.logger.Debug("stop discovery failed", zap.Error(err))
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	objects, err := t.managedObjects(ctx)
	if err != nil {
		return nil, err
	}
	return discovered(objects, t.adapterPath), nil
}

// discovered 从对象树中取本次扫描听到的设备
// BlueZ 只为本次发现期间收到广播的设备设置 RSSI，缓存的旧设备没有该属性
// 结果按信号强度降序，同强度按地址排序，保证选择确定
func discovered(objects managedObjects, adapterPath dbus.ObjectPath) []transport.Peripheral {
	var out []transport.Peripheral
	for path, ifaces := range objects {
		dev, ok := ifaces[ifaceDevice]
		if !ok || !strings.HasPrefix(string(path), string(adapterPath)+"/") {
			continue
		}
		rssi, ok := dev["RSSI"]
		if !ok {
			continue
		}
		p := transport.Peripheral{}
		p.RSSI, _ = rssi.Value().(int16)
		if v, ok := dev["Address"]; ok {
			p.Address, _ = v.Value().(string)
		}
		if v, ok := dev["Name"]; ok {
			p.Name, _ = v.Value().(string)
		} else if v, ok := dev["Alias"]; ok {
			p.Name, _ = v.Value().(string)
		}
		if p.Address != "" {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Connect 调用 Device1.Connect 并等待 ServicesResolved
func (t *Transport) Connect(ctx context.Context, address string, timeout time.Duration) (transport.Conn, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	path := t.devicePath(address)
	if err := t.call(ctx, path, ifaceDevice+".Connect").Err; err != nil {
		// 调用被放弃后 BlueZ 仍会继续连接，须断开以免遗留无主连接
		t.abortConnect(path)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("connect %s: %w", address, transport.ErrTimeout)
		}
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}

	if err := t.waitServicesResolved(ctx, path); err != nil {
		t.abortConnect(path)
		return nil, fmt.Errorf("resolve services %s: %w", address, err)
	}
	return &conn{t: t, address: address, path: path}, nil
}

// abortConnect 尽力断开，使用独立的限时 ctx（调用方 ctx 可能已过期）
func (t *Transport) abortConnect(path dbus.ObjectPath) {
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	if err := t.call(ctx, path, ifaceDevice+".Disconnect").Err; err != nil {
		t.logger.Debug("abort connect: disconnect failed", zap.String("path", string(path)), zap.Error(err))
	}
}

func (t *Transport) waitServicesResolved(ctx context.Context, path dbus.ObjectPath) error {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		v, err := t.property(ctx, path, ifaceDevice, "ServicesResolved")
		if err == nil {
			if resolved, _ := v.Value().(bool); resolved {
				return nil
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return transport.ErrTimeout
			}
			return ctx.Err()
		}
	}
}

// devicePath AA:BB:CC:DD:EE:FF -> /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF
func (t *Transport) devicePath(address string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s/dev_%s", t.adapterPath, strings.ReplaceAll(strings.ToUpper(address), ":", "_")))
}

func (t *Transport) managedObjects(ctx context.Context) (managedObjects, error) {
	objects := make(managedObjects)
	if err := t.call(ctx, "/", methodGetManagedObjects).Store(&objects); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}
	return objects, nil
}

func (t *Transport) property(ctx context.Context, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := t.call(ctx, path, "org.freedesktop.DBus.Properties.Get", iface, name).Store(&v)
	return v, err
}

func isDBusError(err error, name string) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) && dbusErrPtr != nil {
		return dbusErrPtr.Name == name
	}
	return false
}

type conn struct {
	t       *Transport
	address string
	path    dbus.ObjectPath
	chars   map[string]dbus.ObjectPath // uuid(lower) -> path
}

func (c *conn) Address() string { return c.address }

func (c *conn) IsConnected() bool {
	v, err := c.t.property(context.Background(), c.path, ifaceDevice, "Connected")
	if err != nil {
		return false
	}
	connected, _ := v.Value().(bool)
	return connected
}

func (c *conn) WriteCharacteristic(ctx context.Context, uuid string, data []byte) error {
	path, err := c.characteristicPath(ctx, uuid)
	if err != nil {
		return err
	}
	options := map[string]dbus.Variant{"type": dbus.MakeVariant("request")}
	if err := c.t.call(ctx, path, ifaceCharacteristic+".WriteValue", data, options).Err; err != nil {
		return fmt.Errorf("write %s: %w", uuid, err)
	}
	return nil
}

func (c *conn) Characteristics(ctx context.Context) ([]string, error) {
	if err := c.loadCharacteristics(ctx); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(c.chars))
	for uuid := range c.chars {
		out = append(out, uuid)
	}
	return out, nil
}

func (c *conn) Disconnect() error {
	return c.t.call(context.Background(), c.path, ifaceDevice+".Disconnect").Err
}

func (c *conn) characteristicPath(ctx context.Context, uuid string) (dbus.ObjectPath, error) {
	if c.chars == nil {
		if err := c.loadCharacteristics(ctx); err != nil {
			return "", err
		}
	}
	path, ok := c.chars[transport.NormalizeUUID(uuid)]
	if !ok {
		return "", fmt.Errorf("%w: %s", transport.ErrCharacteristicNotFound, uuid)
	}
	return path, nil
}

func (c *conn) loadCharacteristics(ctx context.Context) error {
	objects, err := c.t.managedObjects(ctx)
	if err != nil {
		return err
	}
	chars := make(map[string]dbus.ObjectPath)
	prefix := string(c.path) + "/"
	for path, ifaces := range objects {
		ch, ok := ifaces[ifaceCharacteristic]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		if v, ok := ch["UUID"]; ok {
			if uuid, ok := v.Value().(string); ok {
				chars[transport.NormalizeUUID(uuid)] = path
			}
		}
	}
	c.chars = chars
	return nil
}
