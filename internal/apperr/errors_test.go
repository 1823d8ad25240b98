package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestRemoteErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("push photo: %w", NewRemoteError("PUT", 507, nil))
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("expected wrapped RemoteError to match ErrRemote")
	}
	if code := RemoteCode(err); code != 507 {
		t.Fatalf("expected code 507, got %d", code)
	}
	if RemoteCode(ErrNotFound) != 0 {
		t.Fatalf("non-remote errors should report code 0")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
		code string
	}{
		{fmt.Errorf("read: %w", ErrNotFound), http.StatusNotFound, "not_found"},
		{ErrAccessDenied, http.StatusForbidden, "access_denied"},
		{ErrUnsupportedFormat, http.StatusBadRequest, "unsupported_format"},
		{ErrCacheMissUnfetchable, http.StatusBadGateway, "cache_miss_unfetchable"},
		{NewRemoteError("GET", 500, nil), http.StatusBadGateway, "remote_error"},
		{fmt.Errorf("fetch: %w: %w", ErrCacheMissUnfetchable, NewRemoteError("get", 404, nil)), http.StatusNotFound, "cache_miss_unfetchable"},
		{ErrStorageUnavailable, http.StatusInternalServerError, "storage_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
		if got := Code(tc.err); got != tc.code {
			t.Errorf("Code(%v) = %s, want %s", tc.err, got, tc.code)
		}
	}
}
