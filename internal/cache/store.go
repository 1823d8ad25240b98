package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<CachePath>/bin/<h[0]>/<h[1]>/<h>    # h = blake3(normalized key)
//
// 每个条目仅由正文文件组成，文件的 ModTime/Size 由文件系统提供。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key string) (*ReadResult, error)

	// Stat 返回条目信息但不打开文件。
	Stat(ctx context.Context, key string) (*Entry, error)

	// Put 将正文写入缓存，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。可选地根据 opts.ModTime 设置文件时间戳。
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除正文文件，不存在时不报错。
	Remove(ctx context.Context, key string) error

	// Touch 更新缓存文件的修改时间，用于推送成功后与远端时间对齐。
	Touch(key string, at time.Time) error

	// Path 返回 key 对应的确定性缓存文件路径，无论文件是否存在。
	Path(key string) string
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Key       string    `json:"key"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader，便于 HTTP 层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
