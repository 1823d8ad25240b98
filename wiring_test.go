package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/any-bin/any-bin/internal/config"
)

func TestBuildAppServesStatus(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfigFile(t, fmt.Sprintf(`
StoragePath = "%s"
CachePath = "%s"
TempPath = "%s"

[Remote]
URL = "http://127.0.0.1:1/dav"
InsecureSkipVerify = false

[[Caller]]
Name = "ops"
Token = "ops-token"
Grants = ["role:admin"]
`, filepath.Join(dir, "storage"), filepath.Join(dir, "cache"), filepath.Join(dir, "tmp")))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := buildApp(cfg, logger)
	if err != nil {
		t.Fatalf("构建服务失败: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/-/status", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["remote"] != "http://127.0.0.1:1/dav" || payload["callers"] != float64(1) {
		t.Fatalf("unexpected status payload %v", payload)
	}

	resp, err = app.Test(httptest.NewRequest("PUT", "/local/a.txt", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("anonymous write without manifests should succeed, got %d", resp.StatusCode)
	}
}
