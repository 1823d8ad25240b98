// Package archive exports a stored directory subtree as a zip file.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-bin/any-bin/internal/access"
	"github.com/any-bin/any-bin/internal/apperr"
	"github.com/any-bin/any-bin/internal/keyspace"
)

// FormatZip 是唯一支持的导出格式。
const FormatZip = "zip"

// Archive 指向一个已生成的临时归档文件，调用方负责在流式返回后调用 Remove。
type Archive struct {
	Path string
	// Name 是建议的下载文件名，形如 "<dir>.zip"。
	Name string
	Size int64
	fs   afero.Fs
}

// Remove deletes the temporary archive file.
func (a *Archive) Remove() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := a.fs.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Open returns the archive file for streaming.
func (a *Archive) Open() (afero.File, error) {
	return a.fs.Open(a.Path)
}

// Exporter 构建目录归档。
type Exporter struct {
	space   *keyspace.Space
	fs      afero.Fs
	access  *access.Resolver
	tempDir string
	logger  *logrus.Logger
}

// NewExporter returns an exporter writing temporary archives into tempDir
// (the OS temp directory when empty).
func NewExporter(space *keyspace.Space, resolver *access.Resolver, tempDir string, logger *logrus.Logger) *Exporter {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Exporter{
		space:   space,
		fs:      space.Fs(),
		access:  resolver,
		tempDir: tempDir,
		logger:  logger,
	}
}

// Export 将 dirKey 对应目录打包；归档内的根目录为该目录的 basename。
// 调用方无权访问的子目录整棵跳过，manifest 文件本身不进入归档。
func (e *Exporter) Export(ctx context.Context, caller access.Caller, dirKey, format string) (*Archive, error) {
	if format == "" {
		format = FormatZip
	}
	if !strings.EqualFold(format, FormatZip) {
		return nil, fmt.Errorf("archive format %q: %w", format, apperr.ErrUnsupportedFormat)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.access.AuthorizeOrFail(dirKey, caller); err != nil {
		return nil, err
	}

	dir, err := e.space.Resolve(dirKey, false, false)
	if err != nil {
		return nil, err
	}
	info, err := e.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dirKey, apperr.ErrNotADirectory)
	}

	base := filepath.Base(dir)
	if dir == e.space.Root() {
		base = "root"
	}

	if err := e.fs.MkdirAll(e.tempDir, 0o700); err != nil {
		return nil, fmt.Errorf("prepare temp dir: %v: %w", err, apperr.ErrArchiveToolFailed)
	}
	tmp, err := afero.TempFile(e.fs, e.tempDir, "export-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create archive: %v: %w", err, apperr.ErrArchiveToolFailed)
	}
	archive := &Archive{Path: tmp.Name(), Name: base + ".zip", fs: e.fs}

	if err := e.writeZip(ctx, caller, tmp, dir, base); err != nil {
		_ = tmp.Close()
		_ = archive.Remove()
		e.logger.WithError(err).WithFields(logrus.Fields{
			"action": "export",
			"key":    keyspace.Normalize(dirKey),
		}).Error("archive_failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("export %s: %v: %w", dirKey, err, apperr.ErrArchiveToolFailed)
	}
	if err := tmp.Close(); err != nil {
		_ = archive.Remove()
		return nil, fmt.Errorf("close archive: %v: %w", err, apperr.ErrArchiveToolFailed)
	}
	if st, err := e.fs.Stat(archive.Path); err == nil {
		archive.Size = st.Size()
	}
	return archive, nil
}

func (e *Exporter) writeZip(ctx context.Context, caller access.Caller, out io.Writer, dir, base string) error {
	zw := zip.NewWriter(out)
	walkErr := afero.Walk(e.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := base
		if rel != "." {
			name = base + "/" + filepath.ToSlash(rel)
		}

		if info.IsDir() && p != dir && !e.allowed(p, caller) {
			return filepath.SkipDir
		}
		if info.IsDir() {
			_, err := zw.CreateHeader(&zip.FileHeader{
				Name:     name + "/",
				Modified: info.ModTime(),
			})
			return err
		}
		if !info.Mode().IsRegular() || info.Name() == e.access.ManifestName() {
			return nil
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: info.ModTime(),
		})
		if err != nil {
			return err
		}
		f, err := e.fs.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, f)
		closeErr := f.Close()
		if err != nil {
			return err
		}
		return closeErr
	})
	if walkErr != nil {
		_ = zw.Close()
		return walkErr
	}
	return zw.Close()
}

func (e *Exporter) allowed(p string, caller access.Caller) bool {
	key, ok := e.space.KeyOf(p)
	if !ok {
		return false
	}
	if e.access.Authorize(key, caller) {
		return true
	}
	e.logger.WithFields(logrus.Fields{
		"action": "export",
		"key":    key,
		"caller": caller.ID,
	}).Debug("export_subtree_skipped")
	return false
}
