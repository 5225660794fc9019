package app

import (
	"fmt"

	cfgpkg "github.com/taoyao-code/scent-server/internal/config"
	"github.com/taoyao-code/scent-server/internal/health"
	"github.com/taoyao-code/scent-server/internal/transport"
	"github.com/taoyao-code/scent-server/internal/transport/bluez"
	"github.com/taoyao-code/scent-server/internal/transport/simulator"
	"go.uber.org/zap"
)

// Transport 选定的无线驱动
type Transport struct {
	transport.Transport
	Driver string
	Prober health.AdapterProber // 模拟驱动为 nil
	close  func() error
}

// Close 释放驱动资源
func (t *Transport) Close() error {
	if t.close == nil {
		return nil
	}
	return t.close()
}

// NewTransport 按 transport.driver 构造驱动
func NewTransport(cfg cfgpkg.TransportConfig, logger *zap.Logger) (*Transport, error) {
	switch cfg.Driver {
	case "simulator":
		ps := make([]transport.Peripheral, 0, len(cfg.Simulator.Peripherals))
		for _, p := range cfg.Simulator.Peripherals {
			ps = append(ps, transport.Peripheral{Name: p.Name, Address: p.Address, RSSI: p.RSSI})
		}
		sim := simulator.New(ps...)
		sim.SetLatency(cfg.Simulator.Latency)
		logger.Warn("using simulated radio transport", zap.Int("peripherals", len(ps)))
		return &Transport{Transport: sim, Driver: cfg.Driver}, nil

	case "bluez", "":
		bz, err := bluez.New(cfg.Adapter, logger)
		if err != nil {
			return nil, fmt.Errorf("bluez transport: %w", err)
		}
		logger.Info("using bluez radio transport", zap.String("adapter", cfg.Adapter))
		return &Transport{Transport: bz, Driver: "bluez", Prober: bz, close: bz.Close}, nil

	default:
		return nil, fmt.Errorf("unknown transport driver %q", cfg.Driver)
	}
}
