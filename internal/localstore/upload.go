package localstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-bin/any-bin/internal/access"
	"github.com/any-bin/any-bin/internal/apperr"
	"github.com/any-bin/any-bin/internal/keyspace"
)

// UploadedFile 描述宿主 HTTP 层已落盘的一个上传文件。
type UploadedFile struct {
	Name    string
	TmpPath string
	// Err 非空时表示宿主在接收该文件时已经失败。
	Err error
}

// UploadResult 是单个文件的上传结果；Error 为空表示成功。
type UploadResult struct {
	Name  string `json:"name"`
	Key   string `json:"key,omitempty"`
	Error string `json:"error,omitempty"`
}

// Upload moves each uploaded temp file into dirKey. The directory is created
// when missing. Per-file failures are reported in the result, not returned.
func (s *Store) Upload(ctx context.Context, caller access.Caller, dirKey string, files []UploadedFile) ([]UploadResult, error) {
	dir, err := s.prepare(ctx, caller, dirKey, false, true)
	if err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dirKey, apperr.ErrNotADirectory)
	}

	prefix := keyspace.Normalize(dirKey)
	results := make([]UploadResult, 0, len(files))
	for _, file := range files {
		name := uploadName(file.Name)
		result := UploadResult{Name: file.Name}
		switch {
		case file.Err != nil:
			result.Error = file.Err.Error()
		case name == "":
			result.Error = "invalid file name"
		case name == s.access.ManifestName():
			result.Error = s.guardManifest(path.Join(prefix, name)).Error()
		default:
			if err := ctx.Err(); err != nil {
				return results, err
			}
			if err := s.moveInto(ctx, file.TmpPath, filepath.Join(dir, name)); err != nil {
				result.Error = err.Error()
			} else {
				result.Key = path.Join(prefix, name)
			}
		}
		if result.Error != "" {
			s.logger.WithFields(logrus.Fields{
				"action": "upload",
				"dir":    prefix,
				"file":   file.Name,
			}).Warn(result.Error)
		}
		results = append(results, result)
	}
	return results, nil
}

// moveInto 优先 rename，跨设备时回退为复制后删除。
func (s *Store) moveInto(ctx context.Context, src, dst string) error {
	if err := s.fs.Rename(src, dst); err == nil {
		return nil
	}
	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := s.writeFile(ctx, dst, in); err != nil {
		return err
	}
	if err := s.fs.Remove(src); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).WithField("tmp", src).Warn("upload_tmp_cleanup_failed")
	}
	return nil
}

func uploadName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
