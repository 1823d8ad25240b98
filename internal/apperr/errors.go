// Package apperr 定义 any-bin 各组件共享的错误类别，调用方通过 errors.Is 判断，
// HTTP 层再统一映射为状态码。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound 表示 key 对应的对象不存在。
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied 表示调用方未通过目录链上的某一级 manifest。
	ErrAccessDenied = errors.New("access denied")
	// ErrStorageUnavailable 表示本地目录创建或 IO 失败。
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrArchiveToolFailed  = errors.New("archive creation failed")
	// ErrCacheMissUnfetchable 表示缓存未命中且无法从远端取回。
	ErrCacheMissUnfetchable = errors.New("cache miss unfetchable")
	ErrNotADirectory        = errors.New("not a directory")
	// ErrRemote 是所有 RemoteError 的哨兵值。
	ErrRemote = errors.New("remote error")
)

// RemoteError 记录远端请求的操作名与响应码；Code 为 0 表示传输层失败。
type RemoteError struct {
	Op   string
	Code int
	Err  error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil && e.Code > 0:
		return fmt.Sprintf("remote %s: status %d: %v", e.Op, e.Code, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("remote %s: status %d", e.Op, e.Code)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrRemote) 对任意 RemoteError 成立。
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}

// NewRemoteError 构造带状态码的远端错误。
func NewRemoteError(op string, code int, err error) error {
	return &RemoteError{Op: op, Code: code, Err: err}
}

// RemoteCode 返回错误链中第一个 RemoteError 的状态码，不存在时返回 0。
func RemoteCode(err error) int {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Code
	}
	return 0
}

// Code 返回错误类别的短标识，用于 JSON 响应与日志字段。
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotADirectory):
		return "not_a_directory"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrArchiveToolFailed):
		return "archive_failed"
	case errors.Is(err, ErrCacheMissUnfetchable):
		return "cache_miss_unfetchable"
	case errors.Is(err, ErrRemote):
		return "remote_error"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal_error"
	}
}

// HTTPStatus 将错误类别映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotADirectory):
		return http.StatusNotFound
	case RemoteCode(err) == http.StatusNotFound:
		// 远端不存在的对象对调用方而言就是 NotFound
		return http.StatusNotFound
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrCacheMissUnfetchable), errors.Is(err, ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
