package app

import (
	cfgpkg "github.com/taoyao-code/scent-server/internal/config"
	"github.com/taoyao-code/scent-server/internal/metrics"
	"github.com/taoyao-code/scent-server/internal/session"
	redisstorage "github.com/taoyao-code/scent-server/internal/storage/redis"
	"github.com/taoyao-code/scent-server/internal/transport"
	"go.uber.org/zap"
)

// NewSessionManager 构造设备会话管理器
// 进程内锁始终存在；session.lock=redis 且 Redis 可用时再叠加分布式锁
func NewSessionManager(
	cfg *cfgpkg.Config,
	tr transport.Transport,
	redisClient *redisstorage.Client,
	appm *metrics.AppMetrics,
	logger *zap.Logger,
) (*session.Manager, *session.MemoryLocker) {
	local := session.NewMemoryLocker(cfg.Session.LockWaitTimeout)

	var locker session.Locker = local
	if cfg.Session.Lock == "redis" && redisClient != nil {
		locker = session.ChainLocker{
			local,
			session.NewRedisLocker(redisClient.Client, cfg.Session.LockKey, cfg.Session.LockTTL, cfg.Session.LockWaitTimeout, logger),
		}
		logger.Info("using redis session lock",
			zap.String("key", cfg.Session.LockKey),
			zap.Duration("ttl", cfg.Session.LockTTL))
	} else {
		logger.Info("using memory session lock",
			zap.Duration("wait_timeout", cfg.Session.LockWaitTimeout))
	}

	mgr := session.NewManager(session.Config{
		NameKeyword:        cfg.Device.NameKeyword,
		WriteCharUUID:      cfg.Device.WriteCharUUID,
		ScanTimeout:        cfg.Device.ScanTimeout,
		ProbeTimeout:       cfg.Device.ProbeTimeout,
		ConnectTimeout:     cfg.Device.ConnectTimeout,
		TestConnectTimeout: cfg.Device.TestConnectTimeout,
	}, tr,
		session.WithLocker(locker),
		session.WithMetrics(appm),
		session.WithLogger(logger.Named("session")),
	)
	return mgr, local
}
