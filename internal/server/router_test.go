package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-bin/any-bin/internal/access"
	"github.com/any-bin/any-bin/internal/apperr"
)

func TestRouterSetsRequestIDAndCaller(t *testing.T) {
	app := newTestApp(t)
	app.Get("/whoami", func(c fiber.Ctx) error {
		return c.SendString(CallerFrom(c).ID + "|" + RequestID(c))
	})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer alice-token")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	reqID := resp.Header.Get("X-Request-ID")
	if reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if string(body) != "alice|"+reqID {
		t.Fatalf("unexpected caller/request id: %s", body)
	}
}

func TestRouterTreatsUnknownTokenAsAnonymous(t *testing.T) {
	app := newTestApp(t)
	app.Get("/whoami", func(c fiber.Ctx) error {
		if CallerFrom(c) != access.Anonymous {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	for _, header := range []string{"", "Bearer nope", "Basic YWxpY2U6eA=="} {
		req := httptest.NewRequest("GET", "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("header %q should map to anonymous, got %d", header, resp.StatusCode)
		}
	}
}

func TestRenderErrorMapsKinds(t *testing.T) {
	app := newTestApp(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	app.Get("/denied", func(c fiber.Ctx) error {
		return RenderError(c, logger, "read", "secret/a", fmt.Errorf("read: %w", apperr.ErrAccessDenied))
	})
	app.Get("/bubbled", func(c fiber.Ctx) error {
		return fmt.Errorf("stat: %w", apperr.ErrNotFound)
	})

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/denied", fiber.StatusForbidden, `"access_denied"`},
		{"/bubbled", fiber.StatusNotFound, `"not_found"`},
		{"/missing-route", fiber.StatusNotFound, `"error"`},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.status, resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if !bytes.Contains(body, []byte(tc.code)) {
			t.Fatalf("%s: expected %s in body, got %s", tc.path, tc.code, body)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":    "abc",
		"bearer  abc  ": "abc",
		"Basic abc":     "",
		"Bearer":        "",
		"":              "",
	}
	for in, want := range cases {
		if got := bearerToken(in); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	logger := logrus.New()
	if _, err := NewApp(AppOptions{Logger: logger, Identifier: access.NewStaticOracle(nil)}); err == nil {
		t.Fatalf("missing port should fail")
	}
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	oracle := access.NewStaticOracle([]access.Grant{
		{Name: "alice", Token: "alice-token", Grants: []string{"group:staff"}},
	})
	app, err := NewApp(AppOptions{
		Logger:     logger,
		Identifier: oracle,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app
}
