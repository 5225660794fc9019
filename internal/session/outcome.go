package session

// 结果状态
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// 写特征值核验结果
const (
	CharAvailable  = "available"
	CharUnverified = "unverified"
)

// Outcome 顶层操作结果；序列执行只返回一个聚合结果
type Outcome struct {
	Status  string `json:"status"`
	Message string `json:"message"`

	// 以下为 TestConnection 等诊断字段
	Address             string `json:"address,omitempty"`
	DeviceName          string `json:"device_name,omitempty"`
	Keyword             string `json:"keyword,omitempty"`
	WriteCharacteristic string `json:"write_characteristic,omitempty"`
	Details             string `json:"details,omitempty"`
}

// OK 是否成功
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

func success(msg string) Outcome {
	return Outcome{Status: StatusSuccess, Message: msg}
}

func failure(msg string) Outcome {
	return Outcome{Status: StatusError, Message: msg}
}
