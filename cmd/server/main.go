package main

import (
	"flag"
	"os"

	"github.com/taoyao-code/scent-server/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/scent-server/internal/config"
	"github.com/taoyao-code/scent-server/internal/logging"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认读取 SCENT_CONFIG 或 configs/example.yaml）")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		zap.L().Error("server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
