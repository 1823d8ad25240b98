package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/any-bin/any-bin/internal/access"
	"github.com/any-bin/any-bin/internal/derivative"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为。
type GlobalConfig struct {
	ListenPort    int      `mapstructure:"ListenPort"`
	LogLevel      string   `mapstructure:"LogLevel"`
	LogFilePath   string   `mapstructure:"LogFilePath"`
	LogMaxSize    int      `mapstructure:"LogMaxSize"`
	LogMaxBackups int      `mapstructure:"LogMaxBackups"`
	LogCompress   bool     `mapstructure:"LogCompress"`
	StoragePath   string   `mapstructure:"StoragePath"`
	CachePath     string   `mapstructure:"CachePath"`
	TempPath      string   `mapstructure:"TempPath"`
	AccessFile    string   `mapstructure:"AccessFile"`
	MetadataTTL   Duration `mapstructure:"MetadataTTL"`
	RemoteTimeout Duration `mapstructure:"RemoteTimeout"`
	MkcolAttempts int      `mapstructure:"MkcolAttempts"`
	HashAlgorithm string   `mapstructure:"HashAlgorithm"`
}

// RemoteConfig 描述 WebDAV 远端。
type RemoteConfig struct {
	URL                string `mapstructure:"URL"`
	Username           string `mapstructure:"Username"`
	Password           string `mapstructure:"Password"`
	InsecureSkipVerify bool   `mapstructure:"InsecureSkipVerify"`
}

// HasCredentials 表示是否配置了完整的远端凭证。
func (r RemoteConfig) HasCredentials() bool {
	return r.Username != "" && r.Password != ""
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (r RemoteConfig) AuthMode() string {
	if r.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}

// ImageConfig 是派生图的默认参数，可被请求参数覆盖。
type ImageConfig struct {
	MaxWidth   int `mapstructure:"MaxWidth"`
	MaxHeight  int `mapstructure:"MaxHeight"`
	CropWidth  int `mapstructure:"CropWidth"`
	CropHeight int `mapstructure:"CropHeight"`
}

// Params 转换为 derivative 包的参数。
func (i ImageConfig) Params() derivative.Params {
	return derivative.Params{
		MaxWidth:   i.MaxWidth,
		MaxHeight:  i.MaxHeight,
		CropWidth:  i.CropWidth,
		CropHeight: i.CropHeight,
	}
}

// CallerConfig 对应一个 [[Caller]] 表。
type CallerConfig struct {
	Name   string   `mapstructure:"Name"`
	Token  string   `mapstructure:"Token"`
	Grants []string `mapstructure:"Grants"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Remote  RemoteConfig   `mapstructure:"Remote"`
	Image   ImageConfig    `mapstructure:"Image"`
	Callers []CallerConfig `mapstructure:"Caller"`
}

// AccessGrants 将 [[Caller]] 列表转换为静态 Oracle 的输入。
func (c *Config) AccessGrants() []access.Grant {
	if len(c.Callers) == 0 {
		return nil
	}
	grants := make([]access.Grant, len(c.Callers))
	for i, caller := range c.Callers {
		grants[i] = access.Grant{
			Name:   caller.Name,
			Token:  caller.Token,
			Grants: append([]string(nil), caller.Grants...),
		}
	}
	return grants
}

// CallerNames 返回所有调用方名称，供日志字段使用。
func (c *Config) CallerNames() []string {
	if len(c.Callers) == 0 {
		return nil
	}
	names := make([]string, len(c.Callers))
	for i, caller := range c.Callers {
		names[i] = caller.Name
	}
	return names
}
