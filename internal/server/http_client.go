package server

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-bin/any-bin/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewRemoteClient 返回访问 WebDAV 远端的 http.Client。
// InsecureSkipVerify 开启时跳过证书校验，并在启动日志中给出警告。
func NewRemoteClient(cfg *config.Config, logger *logrus.Logger) *http.Client {
	timeout := 30 * time.Second
	transport := defaultTransport.Clone()
	if cfg != nil {
		if cfg.Global.RemoteTimeout.DurationValue() > 0 {
			timeout = cfg.Global.RemoteTimeout.DurationValue()
		}
		if cfg.Remote.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"action": "remote_client",
					"remote": cfg.Remote.URL,
				}).Warn("remote_tls_verification_disabled")
			}
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
