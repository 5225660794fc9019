package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIClient E2E测试API客户端
type APIClient struct {
	config     *Config
	httpClient *http.Client
}

// NewAPIClient 创建API客户端
func NewAPIClient(cfg *Config) *APIClient {
	return &APIClient{
		config:     cfg,
		httpClient: &http.Client{},
	}
}

// Outcome 服务端返回的操作结果
type Outcome struct {
	Status              string `json:"status"`
	Message             string `json:"message"`
	Address             string `json:"address,omitempty"`
	DeviceName          string `json:"device_name,omitempty"`
	Keyword             string `json:"keyword,omitempty"`
	WriteCharacteristic string `json:"write_characteristic,omitempty"`
	Details             string `json:"details,omitempty"`
}

// OK 是否成功
func (o *Outcome) OK() bool {
	return o.Status == "success"
}

// Step 序列中的一步
type Step struct {
	ScentID  int `json:"scent_id"`
	Duration int `json:"duration"`
}

// ScentInfo 目录条目
type ScentInfo struct {
	Name        string   `json:"name"`
	Location    int      `json:"location"`
	Family      string   `json:"family,omitempty"`
	Description string   `json:"description,omitempty"`
	Notes       []string `json:"notes,omitempty"`
}

// ScentList 目录列表
type ScentList struct {
	Scents []ScentInfo `json:"scents"`
	Count  int         `json:"count"`
}

// APIError 非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error [%d]: %s (request_id=%s)", e.StatusCode, e.Message, e.RequestID)
}

// IsBadRequest 判断是否为参数错误（400）
func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == http.StatusBadRequest
}

// IsUnauthorized 判断是否为认证失败（401/403）
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Health 存活检查
func (c *APIClient) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", out.Status)
	}
	return nil
}

// PlayScent 单次释放
func (c *APIClient) PlayScent(ctx context.Context, scentID, duration int) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()
	var out Outcome
	err := c.doRequest(ctx, http.MethodPost, "/play_scent", Step{ScentID: scentID, Duration: duration}, &out)
	return &out, err
}

// PlaySequence 序列释放；body 原样发送以便构造非法请求
func (c *APIClient) PlaySequence(ctx context.Context, body any) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.SequenceTimeout)
	defer cancel()
	var out Outcome
	err := c.doRequest(ctx, http.MethodPost, "/play_sequence", body, &out)
	return &out, err
}

// TestConnection 连接诊断
func (c *APIClient) TestConnection(ctx context.Context) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()
	var out Outcome
	err := c.doRequest(ctx, http.MethodGet, "/test_connection", nil, &out)
	return &out, err
}

// ListScents 获取气味目录
func (c *APIClient) ListScents(ctx context.Context) (*ScentList, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()
	var out ScentList
	err := c.doRequest(ctx, http.MethodGet, "/api/scents", nil, &out)
	return &out, err
}

// doRequest 执行HTTP请求；非 2xx 时 result 仍按响应体解码，并返回 *APIError
func (c *APIClient) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.config.ServerURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if c.config.Verbose {
		fmt.Printf("[E2E] %s %s -> %d %s\n", method, path, resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response (status %d): %w", resp.StatusCode, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &errBody)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errBody.Message,
			RequestID:  resp.Header.Get("X-Request-ID"),
		}
	}
	return nil
}
