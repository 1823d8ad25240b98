package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/any-bin/any-bin/internal/localstore"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.StoragePath) == "" {
		return newFieldError("StoragePath", "不能为空")
	}
	if strings.TrimSpace(g.CachePath) == "" {
		return newFieldError("CachePath", "不能为空")
	}
	if strings.Contains(g.AccessFile, "/") {
		return newFieldError("AccessFile", "只能是文件名")
	}
	if g.MetadataTTL.DurationValue() < 0 {
		return newFieldError("MetadataTTL", "不能为负数")
	}
	if g.RemoteTimeout.DurationValue() <= 0 {
		return newFieldError("RemoteTimeout", "必须大于 0")
	}
	if g.MkcolAttempts < 1 {
		return newFieldError("MkcolAttempts", "至少为 1")
	}
	if !slices.Contains(localstore.HashAlgorithms, g.HashAlgorithm) {
		return newFieldError("HashAlgorithm", "仅支持 "+strings.Join(localstore.HashAlgorithms, "|"))
	}

	if err := validateRemote(c.Remote.URL); err != nil {
		return fmt.Errorf("Remote.URL: %w", err)
	}
	if (c.Remote.Username == "") != (c.Remote.Password == "") {
		return newFieldError("Remote.Username/Password", "必须同时提供或同时留空")
	}

	img := c.Image
	for _, dim := range []struct {
		field string
		value int
	}{
		{"Image.MaxWidth", img.MaxWidth},
		{"Image.MaxHeight", img.MaxHeight},
		{"Image.CropWidth", img.CropWidth},
		{"Image.CropHeight", img.CropHeight},
	} {
		if dim.value < 0 {
			return newFieldError(dim.field, "不能为负数")
		}
	}

	seenNames := map[string]struct{}{}
	seenTokens := map[string]struct{}{}
	for _, caller := range c.Callers {
		if strings.TrimSpace(caller.Name) == "" {
			return newFieldError("Caller[].Name", "不能为空")
		}
		if _, exists := seenNames[caller.Name]; exists {
			return newFieldError(callerField(caller.Name, "Name"), "重复")
		}
		seenNames[caller.Name] = struct{}{}
		if caller.Token == "" {
			continue
		}
		if _, exists := seenTokens[caller.Token]; exists {
			return newFieldError(callerField(caller.Name, "Token"), "与其他调用方重复")
		}
		seenTokens[caller.Token] = struct{}{}
	}

	return nil
}

func validateRemote(raw string) error {
	if raw == "" {
		return errors.New("缺少远端地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，远端: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("远端缺少 Host: %s", raw)
	}
	return nil
}
