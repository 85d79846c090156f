package service

import "errors"

var (
	// ErrValidation 提交时缺少必填字段或字段非法，同步返回给调用方，不重试
	ErrValidation     = errors.New("validation failed")
	ErrInternalServer = errors.New("internal server error")
)
