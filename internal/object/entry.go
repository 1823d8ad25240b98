// Package object 描述本地与远端列表/stat 操作共用的条目模型。
// 条目总是按需从文件系统或远端状态重新计算，不做持久化。
package object

import "time"

// Kind 区分文件与目录。
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// DirectoryContentType 是目录条目的 content type，与 mime_content_type 的结果一致。
const DirectoryContentType = "inode/directory"

// DefaultRemoteContentType 在远端未返回 getcontenttype 时使用。
const DefaultRemoteContentType = "application/plain"

// Entry 是一次 list/stat 的结果。
type Entry struct {
	Name        string    `json:"name"`
	ParentPath  string    `json:"path"`
	Key         string    `json:"key"`
	Kind        Kind      `json:"type"`
	SizeBytes   int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified"`
	ContentType string    `json:"mimetype"`
}

// IsDir 报告条目是否为目录。
func (e Entry) IsDir() bool {
	return e.Kind == KindDir
}

// Metadata 是远端单个资源的浅层元数据。
type Metadata struct {
	ModifiedAt   time.Time
	SizeBytes    int64
	ContentType  string
	IsCollection bool
}
