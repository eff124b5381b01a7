package models

import (
	"fmt"
	"strings"
)

// Format 目标格式（封闭集合）
type Format string

const (
	FormatOriginal Format = "original"
	FormatWebP     Format = "webp"
	FormatJPEG     Format = "jpeg"
	FormatPNG      Format = "png"
)

// ConversionFormats 可供用户选择的转换格式
var ConversionFormats = []Format{FormatWebP, FormatJPEG, FormatPNG}

// ParseFormat 解析用户输入的格式，空字符串视为 original
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "original":
		return FormatOriginal, nil
	case "webp":
		return FormatWebP, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", s)
	}
}

// Converts 是否需要上游做格式转换
func (f Format) Converts() bool {
	return f != "" && f != FormatOriginal
}

// MIMEType 返回转换请求使用的 MIME 类型
func (f Format) MIMEType() string {
	switch f {
	case FormatWebP:
		return "image/webp"
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	default:
		return ""
	}
}

// Extension 返回带点的文件扩展名，original 返回空
func (f Format) Extension() string {
	switch f {
	case FormatWebP:
		return ".webp"
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	default:
		return ""
	}
}

// ErrorKind 压缩失败分类
type ErrorKind string

const (
	ErrorKindNone               ErrorKind = ""
	ErrorKindCredentialInvalid  ErrorKind = "credential_invalid"
	ErrorKindClientInputInvalid ErrorKind = "client_input_invalid"
	ErrorKindServiceUnavailable ErrorKind = "service_unavailable"
	ErrorKindUnknown            ErrorKind = "unknown"
)

// Retryable 用户是否应稍后重试（而不是修改输入）
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindCredentialInvalid || k == ErrorKindServiceUnavailable
}

// Result 单次压缩的标准化结果
type Result struct {
	Success         bool      `json:"success"`
	OriginalSize    int64     `json:"original_size"`
	CompressedSize  int64     `json:"compressed_size"`
	SavedBytes      int64     `json:"saved_bytes"`
	SavedPercentage float64   `json:"saved_percentage"`
	FormatUsed      Format    `json:"format_used"`
	ErrorKind       ErrorKind `json:"error_kind"`
	OutputPath      string    `json:"output_path,omitempty"`
}

// Failed 构造失败结果
func Failed(kind ErrorKind, format Format) Result {
	return Result{Success: false, ErrorKind: kind, FormatUsed: format}
}

// Succeeded 构造成功结果并计算节省量
func Succeeded(originalSize, compressedSize int64, format Format, outputPath string) Result {
	saved := originalSize - compressedSize
	var pct float64
	if originalSize > 0 {
		pct = float64(saved) / float64(originalSize) * 100
	}
	return Result{
		Success:         true,
		OriginalSize:    originalSize,
		CompressedSize:  compressedSize,
		SavedBytes:      saved,
		SavedPercentage: pct,
		FormatUsed:      format,
		OutputPath:      outputPath,
	}
}
