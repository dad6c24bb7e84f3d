package models

import "errors"

// 错误分类
// 数据源错误按实体类型记录为部分错误，不会中断整个聚合请求
var (
	// ErrProviderUnavailable 数据源不可用（整体失败）
	ErrProviderUnavailable = errors.New("数据源不可用")
	// ErrTimeout 数据源调用超时，按数据源不可用处理
	ErrTimeout = timeoutError{}
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("记录不存在")
	// ErrAccessDenied 无权执行该操作（仅用于写操作，读操作一律返回空集）
	ErrAccessDenied = errors.New("无权执行该操作")
	// ErrValidation 参数校验失败
	ErrValidation = errors.New("参数校验失败")
	// ErrInvalidTransition 状态流转不合法
	ErrInvalidTransition = errors.New("状态流转不合法")
	// ErrInvalidRecipients 通知接收人不合法
	ErrInvalidRecipients = errors.New("通知接收人不合法")
	// ErrReadOnly 数据源只读
	ErrReadOnly = errors.New("数据源只读")
)

// timeoutError 超时错误
// errors.Is(err, ErrProviderUnavailable) 对超时同样成立
type timeoutError struct{}

func (timeoutError) Error() string { return "数据源调用超时" }

func (timeoutError) Is(target error) bool {
	return target == ErrProviderUnavailable
}

// PartialError 部分失败说明
// 出现在响应的metadata.partialErrors中，界面据此标记降级区块
type PartialError struct {
	Entity  EntityType `json:"entity"`            // 受影响的实体类型
	Source  string     `json:"source,omitempty"`  // 失败的数据源名称
	Kind    string     `json:"kind"`              // provider_unavailable 或 timeout
	Message string     `json:"message"`           // 错误信息
	Partial bool       `json:"partial,omitempty"` // 为true表示其它数据源仍返回了数据
}

// ClassifyProviderError 返回数据源错误的类别
func ClassifyProviderError(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "timeout"
	}
	return "provider_unavailable"
}
