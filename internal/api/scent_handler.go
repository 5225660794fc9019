package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taoyao-code/scent-server/internal/api/middleware"
	"github.com/taoyao-code/scent-server/internal/catalog"
	"github.com/taoyao-code/scent-server/internal/session"
	"go.uber.org/zap"
)

// 请求体上限
const maxBodyBytes = 64 << 10

// SessionService 设备会话能力
type SessionService interface {
	PlayOne(ctx context.Context, channel, durationSeconds int) session.Outcome
	PlaySequence(ctx context.Context, steps []session.Step) session.Outcome
	TestConnection(ctx context.Context) session.Outcome
}

// ScentHandler 气味播放API处理器
type ScentHandler struct {
	sess    SessionService
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewScentHandler 创建处理器，catalog 可为 nil
func NewScentHandler(sess SessionService, cat *catalog.Catalog, logger *zap.Logger) *ScentHandler {
	if cat == nil {
		cat = catalog.Empty()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScentHandler{sess: sess, catalog: cat, logger: logger}
}

// PlayScent 播放单个气味
// POST /play_scent {"scent_id": 1, "duration": 5}
// 设备操作一旦开始即执行到底，客户端断开不会中断连接或写入
func (h *ScentHandler) PlayScent(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	step, err := parsePlay(body, h.catalog)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	h.logger.Info("play scent request",
		zap.String("request_id", middleware.RequestID(c)),
		zap.Int("channel", step.Channel),
		zap.Int("duration_s", step.DurationSeconds))

	out := h.sess.PlayOne(context.WithoutCancel(c.Request.Context()), step.Channel, step.DurationSeconds)
	c.JSON(http.StatusOK, out)
}

// PlaySequence 顺序播放
// POST /play_sequence {"sequence": [{"scent_id": 1, "duration": 3}, ...]}
func (h *ScentHandler) PlaySequence(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	steps, err := parseSequence(body, h.catalog)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	total := 0
	for _, s := range steps {
		total += s.DurationSeconds
	}
	h.logger.Info("play sequence request",
		zap.String("request_id", middleware.RequestID(c)),
		zap.Int("steps", len(steps)),
		zap.Int("total_s", total))

	out := h.sess.PlaySequence(context.WithoutCancel(c.Request.Context()), steps)
	c.JSON(http.StatusOK, out)
}

// TestConnection 连通性诊断
// GET /test_connection
func (h *ScentHandler) TestConnection(c *gin.Context) {
	out := h.sess.TestConnection(context.WithoutCancel(c.Request.Context()))
	c.JSON(http.StatusOK, out)
}

// Health 进程存活
// GET /health
func (h *ScentHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Backend is running"})
}

// ListScents 气味目录
// GET /api/scents
func (h *ScentHandler) ListScents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scents": h.catalog.List(), "count": h.catalog.Len()})
}

func readBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, session.Outcome{Status: session.StatusError, Message: msg})
}
