package models

import "errors"

// 拒绝意图时使用的错误类别，调用方用 %w 包装并附带原因
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrIllegalAction        = errors.New("illegal action")
	ErrNotFound             = errors.New("not found")
)

// ErrorKind 返回错误在协议中的类别名
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidConfiguration):
		return "invalidConfiguration"
	case errors.Is(err, ErrIllegalAction):
		return "illegalAction"
	case errors.Is(err, ErrNotFound):
		return "notFound"
	default:
		return "internal"
	}
}

// IsRejection 判断是否为业务拒绝（而非内部错误）
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrIllegalAction) ||
		errors.Is(err, ErrNotFound)
}
