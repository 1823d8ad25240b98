package iox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestCopyTransfersAll(t *testing.T) {
	payload := strings.Repeat("any-bin ", copyBufferSize/4)
	var dst bytes.Buffer
	n, err := Copy(context.Background(), &dst, strings.NewReader(payload))
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if n != int64(len(payload)) || dst.String() != payload {
		t.Fatalf("copied %d bytes, content match=%v", n, dst.String() == payload)
	}
}

func TestCopyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var dst bytes.Buffer
	n, err := Copy(ctx, &dst, strings.NewReader("never written"))
	if !errors.Is(err, context.Canceled) || n != 0 || dst.Len() != 0 {
		t.Fatalf("expected immediate cancel, got n=%d err=%v", n, err)
	}
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) {
	return len(p) / 2, nil
}

func TestCopyReportsShortWrite(t *testing.T) {
	if _, err := Copy(context.Background(), shortWriter{}, strings.NewReader("abcd")); !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("expected short write, got %v", err)
	}
}
