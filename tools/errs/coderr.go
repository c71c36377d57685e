package errs

import "fmt"

// 协作层错误码。ERROR 帧只回给发起请求的那条连接。
const (
	CodeBadEnvelope    = 1000 // 无法解析的信封
	CodeUnknownType    = 1001 // 未注册的消息类型
	CodeNotInRoom      = 1100 // 会话未加入任何房间
	CodeCommentMissing = 1200 // 评论不存在
	CodeNotAuthor      = 1201 // 非作者操作
	CodeLockDenied     = 1300 // 锁被他人持有（提示性，不是异常）
	CodeInternal       = 1500
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("[%d] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Msg, e.Detail)
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// Unwrap lets callers pull the code out of a wrapped chain.
func Code(err error) int {
	if err == nil {
		return 0
	}
	if ce, ok := err.(*CodeError); ok {
		return ce.Code
	}
	return CodeInternal
}
