package server

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-bin/any-bin/internal/config"
)

func TestNewRemoteClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			RemoteTimeout: config.Duration(45 * time.Second),
		},
	}

	client := NewRemoteClient(cfg, nil)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
	transport := client.Transport.(*http.Transport)
	if transport.TLSClientConfig != nil && transport.TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("verification should stay enabled when not requested")
	}
}

func TestNewRemoteClientSkipsVerificationWhenConfigured(t *testing.T) {
	cfg := &config.Config{
		Remote: config.RemoteConfig{URL: "https://dav.local", InsecureSkipVerify: true},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client := NewRemoteClient(cfg, logger)
	if client.Timeout != 30*time.Second {
		t.Fatalf("expected default timeout, got %s", client.Timeout)
	}
	transport := client.Transport.(*http.Transport)
	if transport.TLSClientConfig == nil || !transport.TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("expected InsecureSkipVerify transport")
	}
	if transport == defaultTransport {
		t.Fatalf("transport must be cloned per client")
	}
}
