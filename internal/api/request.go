package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/taoyao-code/scent-server/internal/catalog"
	"github.com/taoyao-code/scent-server/internal/session"
)

// 请求取值范围与默认值
const (
	MinChannel      = 1
	MaxChannel      = 12
	MinDuration     = 1
	MaxDuration     = 60
	DefaultChannel  = 1
	DefaultDuration = 5
)

var errNotInteger = errors.New("not an integer")

// parseStep 解析单个请求对象：scent_id | id | scent_name 择一，duration 可缺省
// allowID 为 false 时忽略 id 字段（/play_scent 只认 scent_id）
// suffix 用于错误消息中标注序列下标，例如 " in item 2"
func parseStep(obj map[string]json.RawMessage, cat *catalog.Catalog, allowID bool, suffix string) (session.Step, error) {
	channel := DefaultChannel
	switch {
	case obj["scent_id"] != nil:
		v, err := intField(obj["scent_id"])
		if err != nil {
			return session.Step{}, fmt.Errorf("Invalid scent_id%s. Must be between %d-%d", suffix, MinChannel, MaxChannel)
		}
		channel = v
	case allowID && obj["id"] != nil:
		v, err := intField(obj["id"])
		if err != nil {
			return session.Step{}, fmt.Errorf("Invalid scent_id%s. Must be between %d-%d", suffix, MinChannel, MaxChannel)
		}
		channel = v
	case obj["scent_name"] != nil:
		var name string
		if err := json.Unmarshal(obj["scent_name"], &name); err != nil {
			return session.Step{}, fmt.Errorf("Invalid scent_name%s", suffix)
		}
		s, err := cat.Lookup(name)
		if err != nil {
			return session.Step{}, fmt.Errorf("Unknown scent_name%s: %q", suffix, name)
		}
		channel = s.Location
	}
	if channel < MinChannel || channel > MaxChannel {
		return session.Step{}, fmt.Errorf("Invalid scent_id%s. Must be between %d-%d", suffix, MinChannel, MaxChannel)
	}

	duration := DefaultDuration
	if raw := obj["duration"]; raw != nil {
		v, err := intField(raw)
		if err != nil {
			return session.Step{}, fmt.Errorf("Invalid duration%s. Must be between %d-%d seconds", suffix, MinDuration, MaxDuration)
		}
		duration = v
	}
	if duration < MinDuration || duration > MaxDuration {
		return session.Step{}, fmt.Errorf("Invalid duration%s. Must be between %d-%d seconds", suffix, MinDuration, MaxDuration)
	}

	return session.Step{Channel: channel, DurationSeconds: duration}, nil
}

// intField 只接受 JSON 整数（拒绝字符串、小数、null）
func intField(raw json.RawMessage) (int, error) {
	var v int
	if string(raw) == "null" {
		return 0, errNotInteger
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, errNotInteger
	}
	return v, nil
}

// parseSequence 解析 {"sequence": [...]}
func parseSequence(body []byte, cat *catalog.Catalog) ([]session.Step, error) {
	var req struct {
		Sequence []json.RawMessage `json:"sequence"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.New("Invalid request body")
	}
	if len(req.Sequence) == 0 {
		return nil, errors.New("No sequence provided")
	}

	steps := make([]session.Step, 0, len(req.Sequence))
	for i, raw := range req.Sequence {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			return nil, fmt.Errorf("Item %d must be a dictionary", i)
		}
		step, err := parseStep(obj, cat, true, fmt.Sprintf(" in item %d", i))
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// parsePlay 解析单次播放请求；空请求体按默认值处理
func parsePlay(body []byte, cat *catalog.Catalog) (session.Step, error) {
	obj := map[string]json.RawMessage{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &obj); err != nil {
			return session.Step{}, errors.New("Invalid request body")
		}
		if obj == nil {
			obj = map[string]json.RawMessage{}
		}
	}
	return parseStep(obj, cat, false, "")
}
