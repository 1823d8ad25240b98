package localstore

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/any-bin/any-bin/internal/access"
	"github.com/any-bin/any-bin/internal/apperr"
	"github.com/any-bin/any-bin/internal/iox"
)

// DefaultHashAlgorithm 是未配置时使用的摘要算法。
const DefaultHashAlgorithm = "sha256"

// HashAlgorithms lists the digests Hash accepts.
var HashAlgorithms = []string{"sha256", "sha1", "md5", "blake3"}

// NewHasher returns a fresh hash for algo or ErrUnsupportedFormat.
func NewHasher(algo string) (hash.Hash, error) {
	switch strings.ToLower(strings.TrimSpace(algo)) {
	case "sha256":
		return sha256.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "md5":
		return md5.New(), nil
	case "blake3":
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("hash algorithm %q: %w", algo, apperr.ErrUnsupportedFormat)
	}
}

// Hash 计算 key 对应文件的十六进制摘要；algo 为空时使用 Store 的默认算法。
func (s *Store) Hash(ctx context.Context, caller access.Caller, key, algo string) (string, error) {
	if algo == "" {
		algo = s.hashAlgo
	}
	h, err := NewHasher(algo)
	if err != nil {
		return "", err
	}

	result, err := s.Open(ctx, caller, key)
	if err != nil {
		return "", err
	}
	defer result.Reader.Close()

	if _, err := iox.Copy(ctx, h, result.Reader); err != nil {
		return "", fmt.Errorf("hash %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyHash reports whether the digest of key equals expected (case-insensitive hex).
func (s *Store) VerifyHash(ctx context.Context, caller access.Caller, key, expected, algo string) (bool, error) {
	actual, err := s.Hash(ctx, caller, key, algo)
	if err != nil {
		return false, err
	}
	expected = strings.ToLower(strings.TrimSpace(expected))
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1, nil
}
