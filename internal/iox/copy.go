// Package iox 提供存储层共用的 IO 小工具。
package iox

import (
	"context"
	"errors"
	"io"
)

const copyBufferSize = 32 * 1024

// Copy 与 io.Copy 相同，但在每个分块之间检查 ctx，取消后立即返回 ctx.Err()。
func Copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, copyBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
