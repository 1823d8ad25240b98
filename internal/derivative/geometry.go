package derivative

import (
	"fmt"
	"image"

	"github.com/any-bin/any-bin/internal/keyspace"
)

// Params 描述一次派生请求；0 表示该维度不受约束。
type Params struct {
	MaxWidth   int
	MaxHeight  int
	CropWidth  int
	CropHeight int
}

// WantsResize reports whether a resize bound is set.
func (p Params) WantsResize() bool {
	return p.MaxWidth > 0 || p.MaxHeight > 0
}

// WantsCrop reports whether both crop dimensions are set. A crop with a single
// dimension has no defined aspect ratio and is skipped.
func (p Params) WantsCrop() bool {
	return p.CropWidth > 0 && p.CropHeight > 0
}

// IsZero reports whether no derivative is requested.
func (p Params) IsZero() bool {
	return !p.WantsResize() && !p.WantsCrop()
}

// Merge 用 override 中的非零值覆盖 p。
func (p Params) Merge(override Params) Params {
	if override.MaxWidth > 0 {
		p.MaxWidth = override.MaxWidth
	}
	if override.MaxHeight > 0 {
		p.MaxHeight = override.MaxHeight
	}
	if override.CropWidth > 0 {
		p.CropWidth = override.CropWidth
	}
	if override.CropHeight > 0 {
		p.CropHeight = override.CropHeight
	}
	return p
}

// keyPrefix 把合成 key 放进保留命名空间，远端对象名不可能与之相同。
const keyPrefix = keyspace.ReservedPrefix + "derivative:"

// ResizedKey 返回缩放派生图的合成 key。
func ResizedKey(maxWidth, maxHeight int, sourceKey string) string {
	return fmt.Sprintf("%scache_resized_image_%d*%d/%s", keyPrefix, maxWidth, maxHeight, sourceKey)
}

// CroppedKey 返回裁剪派生图的合成 key。
func CroppedKey(cropWidth, cropHeight int, sourceKey string) string {
	return fmt.Sprintf("%scache_cropped_image_%d*%d/%s", keyPrefix, cropWidth, cropHeight, sourceKey)
}

// FitSize scales (width, height) down so that neither bound is exceeded while
// keeping the aspect ratio. The width bound is applied first, then the height
// bound against the intermediate result. Fractions are truncated.
func FitSize(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	newWidth, newHeight := width, height
	if maxWidth > 0 && maxWidth < newWidth {
		newWidth = maxWidth
		newHeight = height * newWidth / width
	}
	if maxHeight > 0 && maxHeight < newHeight {
		newHeight = maxHeight
		newWidth = width * newHeight / height
	}
	return max(newWidth, 1), max(newHeight, 1)
}

// CropWindow returns the centered region of a width x height image whose
// aspect ratio matches cropWidth x cropHeight.
func CropWindow(width, height, cropWidth, cropHeight int) image.Rectangle {
	if width <= 0 || height <= 0 || cropWidth <= 0 || cropHeight <= 0 {
		return image.Rect(0, 0, width, height)
	}
	x, y := 0.0, 0.0
	w, h := float64(width), float64(height)
	if float64(cropWidth)/float64(cropHeight) > w/h {
		n := w / float64(cropWidth) * float64(cropHeight)
		y = (h - n) / 2
		h = n
	} else {
		n := h / float64(cropHeight) * float64(cropWidth)
		x = (w - n) / 2
		w = n
	}
	x0, y0 := int(x), int(y)
	return image.Rect(x0, y0, x0+max(int(w), 1), y0+max(int(h), 1))
}
