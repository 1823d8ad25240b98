package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := fixturePath("valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.ListenPort != 5100 {
		t.Fatalf("ListenPort 应当被解析, got %d", cfg.Global.ListenPort)
	}
	if cfg.Global.MetadataTTL.DurationValue() != 45*time.Second {
		t.Fatalf("整数秒应解析为 Duration, got %v", cfg.Global.MetadataTTL.DurationValue())
	}
	if cfg.Global.RemoteTimeout.DurationValue() != 30*time.Second {
		t.Fatalf("RemoteTimeout 应该自动填充默认值")
	}
	if cfg.Global.MkcolAttempts != 2 || cfg.Global.AccessFile != ".access" {
		t.Fatalf("默认值缺失: %+v", cfg.Global)
	}
	if cfg.Global.HashAlgorithm != "blake3" {
		t.Fatalf("HashAlgorithm 应当被规范化, got %s", cfg.Global.HashAlgorithm)
	}
	if !filepath.IsAbs(cfg.Global.StoragePath) || !filepath.IsAbs(cfg.Global.CachePath) {
		t.Fatalf("目录应转换为绝对路径: %s %s", cfg.Global.StoragePath, cfg.Global.CachePath)
	}
	if cfg.Remote.URL != "https://dav.example.com/remote.php/webdav" {
		t.Fatalf("Remote.URL 末尾斜杠应被去除, got %s", cfg.Remote.URL)
	}
	if !cfg.Remote.InsecureSkipVerify {
		t.Fatalf("InsecureSkipVerify 默认应为 true")
	}
	if cfg.Remote.AuthMode() != "credentialed" {
		t.Fatalf("凭证模式错误: %s", cfg.Remote.AuthMode())
	}
	p := cfg.Image.Params()
	if p.MaxWidth != 1024 || p.MaxHeight != 0 || p.CropWidth != 200 || p.CropHeight != 200 {
		t.Fatalf("Image 参数解析错误: %+v", p)
	}
	grants := cfg.AccessGrants()
	if len(grants) != 2 || grants[0].Name != "ops" || grants[0].Grants[0] != "role:admin" {
		t.Fatalf("Caller 解析错误: %+v", grants)
	}
}

func TestValidateRejectsMissingRemote(t *testing.T) {
	cfgPath := fixturePath("missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	assertFieldError(t, cfg.Validate(), "ListenPort")
}

func TestValidateHashAlgorithm(t *testing.T) {
	testCases := []struct {
		name      string
		algo      string
		shouldErr bool
	}{
		{"sha256 ok", "sha256", false},
		{"md5 ok", "md5", false},
		{"blake3 ok", "blake3", false},
		{"unsupported", "crc32", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Global.HashAlgorithm = tc.algo
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for algorithm %q", tc.algo)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for algorithm %q: %v", tc.algo, err)
			}
		})
	}
}

func TestValidateRequiresCredentialPairs(t *testing.T) {
	cfg := validConfig()
	cfg.Remote.Password = ""
	assertFieldError(t, cfg.Validate(), "Remote.Username/Password")
}

func TestValidateRejectsRemoteScheme(t *testing.T) {
	cfg := validConfig()
	cfg.Remote.URL = "ftp://dav.local/files"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非 http/https 远端应报错")
	}
}

func TestValidateRejectsNegativeImageParams(t *testing.T) {
	cfg := validConfig()
	cfg.Image.CropHeight = -1
	assertFieldError(t, cfg.Validate(), "Image.CropHeight")
}

func TestValidateCallers(t *testing.T) {
	cfg := validConfig()
	cfg.Callers = append(cfg.Callers, CallerConfig{Name: "ops", Token: "other"})
	assertFieldError(t, cfg.Validate(), "Caller[ops].Name")

	cfg = validConfig()
	cfg.Callers = append(cfg.Callers, CallerConfig{Name: "bob", Token: "ops-token"})
	assertFieldError(t, cfg.Validate(), "Caller[bob].Token")
}

func assertFieldError(t *testing.T, err error, field string) {
	t.Helper()
	var fe FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldError for %s, got %v", field, err)
	}
	if fe.Field != field {
		t.Fatalf("expected field %s, got %s", field, fe.Field)
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:    5000,
			StoragePath:   "./data",
			CachePath:     "./cache",
			AccessFile:    ".access",
			MetadataTTL:   Duration(30 * time.Second),
			RemoteTimeout: Duration(time.Second),
			MkcolAttempts: 2,
			HashAlgorithm: "sha256",
		},
		Remote: RemoteConfig{
			URL:      "https://dav.local/files",
			Username: "bin",
			Password: "secret",
		},
		Callers: []CallerConfig{
			{Name: "ops", Token: "ops-token", Grants: []string{"role:admin"}},
		},
	}
}
