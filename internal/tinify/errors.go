package tinify

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrForeignLocation 上游返回的结果地址不在配置的 API 主机上
var ErrForeignLocation = errors.New("result location is not on the api host")

// Kind 上游错误分类
type Kind int

const (
	KindUnknown    Kind = iota
	KindAccount         // 401/429：凭证无效或额度用尽
	KindClient          // 其他 4xx：输入问题
	KindServer          // 5xx
	KindConnection      // 网络错误或超时
)

func (k Kind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Error 上游 API 返回的错误
type Error struct {
	Kind    Kind
	Status  int    // HTTP 状态码，网络错误时为 0
	Code    string // 响应体中的 error 字段
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status > 0:
		return fmt.Sprintf("tinify %s error (HTTP %d %s): %s", e.Kind, e.Status, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("tinify %s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("tinify %s error: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 取出错误分类，非 *Error 返回 KindUnknown
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// kindForStatus 按 HTTP 状态码分类
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusTooManyRequests:
		return KindAccount
	case status >= 400 && status < 500:
		return KindClient
	case status >= 500 && status < 600:
		return KindServer
	default:
		return KindUnknown
	}
}
