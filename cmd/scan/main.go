// scan 列出附近的 BLE 外设，名称包含关键字的外设会被标记
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/taoyao-code/scent-server/internal/app"
	cfgpkg "github.com/taoyao-code/scent-server/internal/config"
	"github.com/taoyao-code/scent-server/internal/logging"
	"github.com/taoyao-code/scent-server/internal/transport"
	"go.uber.org/zap"
)

// 退出码：0 发现匹配外设；1 出错；2 未发现匹配外设
func main() {
	configPath := flag.String("config", "", "配置文件路径")
	timeout := flag.Duration("timeout", 15*time.Second, "扫描时长")
	keyword := flag.String("keyword", "", "名称关键字（默认取 device.nameKeyword）")
	all := flag.Bool("all", false, "同时列出无名称外设")
	flag.Parse()

	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level, "console", os.Stderr)

	if *keyword == "" {
		*keyword = cfg.Device.NameKeyword
	}

	matches, err := run(os.Stdout, cfg, logger, *timeout, *keyword, *all)
	_ = logger.Sync()
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		os.Exit(1)
	case matches == 0:
		os.Exit(2)
	}
}

// run 打开传输、扫描并输出结果，返回匹配数；所有 defer 在返回前执行
func run(w io.Writer, cfg *cfgpkg.Config, logger *zap.Logger, timeout time.Duration, keyword string, all bool) (int, error) {
	tr, err := app.NewTransport(cfg.Transport, logger)
	if err != nil {
		return 0, fmt.Errorf("transport unavailable: %w", err)
	}
	defer func() {
		if err := tr.Close(); err != nil {
			logger.Warn("close transport", zap.Error(err))
		}
	}()

	logger.Info("scanning", zap.Duration("timeout", timeout), zap.String("driver", tr.Driver))
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	found, err := tr.Scan(ctx, timeout)
	if err != nil {
		return 0, fmt.Errorf("scan failed: %w", err)
	}
	return report(w, found, keyword, all), nil
}

// report 输出扫描结果：有名称的外设在前，按信号强度降序；返回匹配关键字的数量
func report(w io.Writer, found []transport.Peripheral, keyword string, all bool) int {
	named := make([]transport.Peripheral, 0, len(found))
	for _, p := range found {
		if p.Name != "" || all {
			named = append(named, p)
		}
	}
	sort.SliceStable(named, func(i, j int) bool {
		if (named[i].Name == "") != (named[j].Name == "") {
			return named[i].Name != ""
		}
		return named[i].RSSI > named[j].RSSI
	})

	fmt.Fprintf(w, "found %d device(s), %d with names\n", len(found), countNamed(found))
	matches := 0
	for i, p := range named {
		name := p.Name
		if name == "" {
			name = "(unknown)"
		}
		mark := ""
		if p.NameContains(keyword) {
			mark = "  <- matches " + fmt.Sprintf("%q", keyword)
			matches++
		}
		fmt.Fprintf(w, "%3d  %-17s  %4d dBm  %s%s\n", i+1, p.Address, p.RSSI, name, mark)
	}
	if matches == 0 {
		fmt.Fprintf(w, "no device name contains %q; check that the device is powered on and in range\n", keyword)
	}
	return matches
}

func countNamed(ps []transport.Peripheral) int {
	n := 0
	for _, p := range ps {
		if p.Name != "" {
			n++
		}
	}
	return n
}
