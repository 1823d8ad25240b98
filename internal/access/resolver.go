// Package access 实现按目录链逐级校验的访问控制：从存储根目录走到 key 的最后一级目录，
// 每一级存在的 manifest 都必须独立放行调用方（级间 AND，级内 OR），管理员直接放行。
// 结果从不缓存，manifest 在每次检查时重新读取。
package access

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/any-bin/any-bin/internal/apperr"
	"github.com/any-bin/any-bin/internal/keyspace"
	"github.com/any-bin/any-bin/internal/metrics"
)

// DefaultManifestName 是目录访问清单的默认文件名。
const DefaultManifestName = ".access"

// Caller 标识一次请求的调用方，对本包而言是不透明值，由 Oracle 解释。
type Caller struct {
	ID string
}

// Anonymous 表示未携带凭证的调用方。
var Anonymous = Caller{}

// Oracle 由宿主提供，回答“调用方是否满足访问令牌 X”以及“是否为管理员”。
type Oracle interface {
	Authorized(token string, caller Caller) bool
	IsAdmin(caller Caller) bool
}

// Resolver 对 key 的目录链执行访问判定。
type Resolver struct {
	root         string
	manifestName string
	oracle       Oracle
	logger       *logrus.Logger
}

// NewResolver 构造 Resolver；manifestName 为空时使用 DefaultManifestName。
func NewResolver(root, manifestName string, oracle Oracle, logger *logrus.Logger) *Resolver {
	if manifestName == "" {
		manifestName = DefaultManifestName
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Resolver{
		root:         root,
		manifestName: manifestName,
		oracle:       oracle,
		logger:       logger,
	}
}

// ManifestName returns the sidecar file name holding access tokens.
func (r *Resolver) ManifestName() string {
	return r.manifestName
}

// IsManifest reports whether key names a manifest file. Manifests are
// read-only through the store.
func (r *Resolver) IsManifest(key string) bool {
	segments := keyspace.Segments(key)
	return len(segments) > 0 && segments[len(segments)-1] == r.manifestName
}

// Authorize reports whether caller may access key.
func (r *Resolver) Authorize(key string, caller Caller) bool {
	return r.AuthorizeOrFail(key, caller) == nil
}

// AuthorizeOrFail is Authorize returning ErrAccessDenied on refusal.
func (r *Resolver) AuthorizeOrFail(key string, caller Caller) error {
	err := r.check(key, caller)
	metrics.RecordAccessCheck(err == nil)
	return err
}

func (r *Resolver) check(key string, caller Caller) error {
	if r.oracle != nil && r.oracle.IsAdmin(caller) {
		return nil
	}

	current, err := filepath.EvalSymlinks(r.root)
	if err != nil {
		return nil
	}
	if err := r.checkLevel(key, current, caller); err != nil {
		return err
	}

	for _, segment := range keyspace.Segments(key) {
		next, err := filepath.EvalSymlinks(filepath.Join(current, segment))
		if err != nil {
			break
		}
		info, err := os.Stat(next)
		if err != nil || !info.IsDir() {
			break
		}
		current = next
		if err := r.checkLevel(key, current, caller); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) checkLevel(key, dir string, caller Caller) error {
	manifestPath := filepath.Join(dir, r.manifestName)
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"action":   "access_check",
			"key":      key,
			"manifest": manifestPath,
		}).Warn("manifest_unreadable")
		return fmt.Errorf("%s: unreadable manifest: %w", key, apperr.ErrAccessDenied)
	}
	if manifest == nil {
		return nil
	}

	for _, token := range manifest.Tokens {
		if r.oracle != nil && r.oracle.Authorized(token, caller) {
			return nil
		}
	}

	r.logger.WithFields(logrus.Fields{
		"action": "access_check",
		"key":    key,
		"dir":    dir,
		"caller": caller.ID,
	}).Debug("access_denied")
	return fmt.Errorf("%s: %w", key, apperr.ErrAccessDenied)
}
