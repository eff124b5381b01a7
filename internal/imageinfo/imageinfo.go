// Package imageinfo 在上传前做本地图片校验
package imageinfo

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrTooLarge             = errors.New("file too large")
	ErrEmpty                = errors.New("file is empty")
	ErrNotImage             = errors.New("file is not a supported image")
)

// AllowedExtensions 允许上传的扩展名
var AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// Info 图片基本信息
type Info struct {
	Format string // jpeg / png / webp
	Width  int
	Height int
	Size   int64
}

// AllowedExtension 判断扩展名是否允许（不区分大小写）
func AllowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Inspect 读取文件头解析格式与尺寸；maxSize<=0 不限制大小
func Inspect(path string, maxSize int64) (*Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, ErrEmpty
	}
	if maxSize > 0 && st.Size() > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, st.Size(), maxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return &Info{Format: format, Width: cfg.Width, Height: cfg.Height, Size: st.Size()}, nil
}

// HumanSize 以 B/KB/MB 格式化字节数
func HumanSize(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	var s string
	switch {
	case n >= 1<<20:
		s = fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		s = fmt.Sprintf("%.2f KB", float64(n)/(1<<10))
	default:
		s = fmt.Sprintf("%d B", n)
	}
	if neg {
		return "-" + s
	}
	return s
}
