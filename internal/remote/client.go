// Package remote 实现面向 WebDAV 端点的最小客户端：GET、PUT、MKCOL 与 PROPFIND
// （Depth 0/1）。每个请求都带 basic 认证，证书校验策略由注入的 http.Client 决定。
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"
	"github.com/sirupsen/logrus"

	"github.com/any-bin/any-bin/internal/apperr"
	"github.com/any-bin/any-bin/internal/keyspace"
	"github.com/any-bin/any-bin/internal/metrics"
	"github.com/any-bin/any-bin/internal/object"
)

const methodPropfind = "PROPFIND"
const methodMkcol = "MKCOL"

// Options 描述远端端点及认证信息。
type Options struct {
	URL      string
	Username string
	Password string
	// MkcolAttempts bounds retries of a failing MKCOL; values < 1 mean one attempt.
	MkcolAttempts int
}

// Client talks to one WebDAV base URL.
type Client struct {
	http          *http.Client
	base          *url.URL
	basePath      string
	authHeader    string
	mkcolAttempts int
	logger        *logrus.Logger
}

// Object 是一次 GET 的响应正文与头部元数据，调用方负责 Close。
type Object struct {
	Body        io.ReadCloser
	SizeBytes   int64
	ModifiedAt  time.Time
	ContentType string
}

// NewClient validates the base URL and returns a client using httpClient for transport.
func NewClient(httpClient *http.Client, opts Options, logger *logrus.Logger) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("remote url required")
	}
	base, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote url must be http or https: %s", opts.URL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	attempts := opts.MkcolAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		http:          httpClient,
		base:          base,
		basePath:      strings.TrimRight(base.Path, "/"),
		authHeader:    buildCredentialHeader(opts.Username, opts.Password),
		mkcolAttempts: attempts,
		logger:        logger,
	}, nil
}

// BaseURL returns the configured endpoint without trailing slash.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// FetchObject 下载完整对象内容。
func (c *Client) FetchObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.OpenObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, apperr.NewRemoteError("get", 0, err)
	}
	return data, nil
}

// OpenObject issues a GET and returns the streaming body on 2xx.
func (c *Client) OpenObject(ctx context.Context, key string) (*Object, error) {
	resp, err := c.do(ctx, "get", http.MethodGet, key, nil, -1, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		drain(resp)
		return nil, apperr.NewRemoteError("get", resp.StatusCode, nil)
	}

	obj := &Object{
		Body:        resp.Body,
		SizeBytes:   resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if last := resp.Header.Get("Last-Modified"); last != "" {
		if parsed, err := http.ParseTime(last); err == nil {
			obj.ModifiedAt = parsed.UTC()
		}
	}
	return obj, nil
}

// FetchMetadata issues a Depth 0 PROPFIND for key.
func (c *Client) FetchMetadata(ctx context.Context, key string) (*object.Metadata, error) {
	resources, err := c.propfind(ctx, key, "0")
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, apperr.NewRemoteError("propfind", http.StatusMultiStatus, errors.New("empty multistatus"))
	}

	res := resources[0]
	meta := &object.Metadata{
		SizeBytes:    res.contentLength,
		ContentType:  res.contentType,
		IsCollection: res.collection,
	}
	if res.hasModified {
		meta.ModifiedAt = res.lastModified
	}
	// 没有长度与类型的资源按集合处理。
	if res.contentLength == 0 && res.contentType == "" && !res.hasModified {
		meta.IsCollection = true
	}
	return meta, nil
}

// ListChildren issues a Depth 1 PROPFIND and returns the children of parentKey
// sorted by natural name order. The parent itself is excluded.
func (c *Client) ListChildren(ctx context.Context, parentKey string) ([]object.Entry, error) {
	parent := keyspace.Normalize(parentKey)
	resources, err := c.propfind(ctx, parent, "1")
	if err != nil {
		return nil, err
	}

	entries := make([]object.Entry, 0, len(resources))
	for _, res := range resources {
		key, ok := c.keyFromHref(res.href)
		if !ok || key == parent {
			continue
		}
		entry := object.Entry{
			Name:        path.Base(key),
			ParentPath:  path.Dir(key),
			Key:         key,
			Kind:        object.KindFile,
			SizeBytes:   res.contentLength,
			ModifiedAt:  res.lastModified,
			ContentType: res.contentType,
		}
		if res.collection {
			entry.Kind = object.KindDir
		}
		if entry.ContentType == "" {
			if entry.IsDir() {
				entry.ContentType = object.DirectoryContentType
			} else {
				entry.ContentType = object.DefaultRemoteContentType
			}
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return natural.Less(entries[i].Name, entries[j].Name)
	})
	return entries, nil
}

// CreateDirectory 依次对 key 的每一级执行 MKCOL；405 表示已存在，视为成功。
func (c *Client) CreateDirectory(ctx context.Context, key string) error {
	segments := keyspace.Segments(key)
	for i := range segments {
		current := strings.Join(segments[:i+1], "/")
		if err := c.mkcol(ctx, current); err != nil {
			return err
		}
	}
	return nil
}

// PushObject uploads body to key. Any status >= 400 is a RemoteError.
func (c *Client) PushObject(ctx context.Context, key string, body io.Reader, length int64) error {
	resp, err := c.do(ctx, "put", http.MethodPut, key, body, length, nil)
	if err != nil {
		return err
	}
	drain(resp)
	if resp.StatusCode >= 400 {
		return apperr.NewRemoteError("put", resp.StatusCode, nil)
	}
	return nil
}

func (c *Client) mkcol(ctx context.Context, key string) error {
	var lastErr error
	for attempt := 1; attempt <= c.mkcolAttempts; attempt++ {
		resp, err := c.do(ctx, "mkcol", methodMkcol, key, nil, -1, nil)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		drain(resp)
		if resp.StatusCode < 300 || resp.StatusCode == http.StatusMethodNotAllowed {
			return nil
		}
		lastErr = apperr.NewRemoteError("mkcol", resp.StatusCode, nil)
		// 4xx 重试无意义
		if resp.StatusCode < 500 {
			break
		}
	}
	c.logger.WithError(lastErr).WithFields(logrus.Fields{
		"action": "mkcol",
		"key":    key,
	}).Warn("remote_mkcol_failed")
	return lastErr
}

func (c *Client) propfind(ctx context.Context, key, depth string) ([]resource, error) {
	headers := http.Header{}
	headers.Set("Depth", depth)
	headers.Set("Content-Type", "application/xml; charset=utf-8")
	body := []byte(propfindBody)

	resp, err := c.do(ctx, "propfind", methodPropfind, key, bytes.NewReader(body), int64(len(body)), headers)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, apperr.NewRemoteError("propfind", resp.StatusCode, nil)
	}
	resources, err := decodeMultistatus(resp.Body)
	if err != nil {
		return nil, apperr.NewRemoteError("propfind", resp.StatusCode, fmt.Errorf("decode multistatus: %w", err))
	}
	return resources, nil
}

func (c *Client) do(
	ctx context.Context,
	op string,
	method string,
	key string,
	body io.Reader,
	length int64,
	headers http.Header,
) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, c.objectURL(key), body)
	if err != nil {
		return nil, apperr.NewRemoteError(op, 0, err)
	}
	if length >= 0 {
		req.ContentLength = length
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordRemoteRequest(op, 0, time.Since(started))
		c.logger.WithError(err).WithFields(logrus.Fields{
			"action": "remote_" + op,
			"key":    key,
		}).Warn("remote_request_failed")
		return nil, apperr.NewRemoteError(op, 0, err)
	}
	metrics.RecordRemoteRequest(op, resp.StatusCode, time.Since(started))
	c.logger.WithFields(logrus.Fields{
		"action":     "remote_" + op,
		"key":        key,
		"status":     resp.StatusCode,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Debug("remote_request")
	return resp, nil
}

// objectURL 将 key 拼接到 base URL，路径转义交给 url.URL。
func (c *Client) objectURL(key string) string {
	u := *c.base
	u.RawPath = ""
	u.Path = c.basePath + "/" + strings.Join(keyspace.Segments(key), "/")
	return u.String()
}

// keyFromHref 去掉 base path 前缀，得到相对 key。
func (c *Client) keyFromHref(href string) (string, bool) {
	if href == "" {
		return "", false
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	p := parsed.Path
	if c.basePath != "" {
		if p != c.basePath && !strings.HasPrefix(p, c.basePath+"/") {
			return "", false
		}
		p = p[len(c.basePath):]
	}
	return keyspace.Normalize(p), true
}

func buildCredentialHeader(username, password string) string {
	if username == "" && password == "" {
		return ""
	}
	token := username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	_ = resp.Body.Close()
}
