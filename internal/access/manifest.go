package access

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Manifest 是某一级目录声明的访问令牌集合，顺序与文件中一致。
type Manifest struct {
	Tokens []string
}

// LoadManifest 读取并解析 manifest 文件。文件不存在或内容不是列表/映射时返回 nil，
// 表示该级目录不追加任何限制；读取或 YAML 解析失败时返回错误。
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return ParseManifest(data)
}

// ParseManifest decodes a YAML manifest. A sequence yields its scalar items in
// order, a mapping yields its values ordered by key.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	switch v := raw.(type) {
	case []interface{}:
		m := &Manifest{Tokens: make([]string, 0, len(v))}
		for _, item := range v {
			if token, ok := scalarToken(item); ok {
				m.Tokens = append(m.Tokens, token)
			}
		}
		return m, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		m := &Manifest{Tokens: make([]string, 0, len(v))}
		for _, key := range keys {
			if token, ok := scalarToken(v[key]); ok {
				m.Tokens = append(m.Tokens, token)
			}
		}
		return m, nil
	default:
		return nil, nil
	}
}

func scalarToken(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case nil:
		return "", false
	case []interface{}, map[string]interface{}:
		return "", false
	default:
		return fmt.Sprint(t), true
	}
}
