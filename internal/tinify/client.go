// 文件: internal/tinify/client.go
package tinify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"image-compressor/internal/config"
	"image-compressor/internal/models"

	"github.com/sirupsen/logrus"
)

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// Client TinyPNG HTTP 客户端，可并发使用
type Client struct {
	client      *http.Client
	baseURL     string
	webpQuality int
}

// ShrinkResult 上传压缩的响应
type ShrinkResult struct {
	Location         string // 压缩结果地址
	InputSize        int64
	InputType        string
	OutputSize       int64
	OutputType       string
	CompressionCount int // 本月已用次数，未返回时为 -1
}

type shrinkResponse struct {
	Input struct {
		Size int64  `json:"size"`
		Type string `json:"type"`
	} `json:"input"`
	Output struct {
		Size int64  `json:"size"`
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"output"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewClient 创建客户端
func NewClient(cfg *config.TinifyConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		client:      &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		webpQuality: cfg.WebPQuality,
	}
}

// Shrink 上传图片并压缩
func (c *Client) Shrink(ctx context.Context, apiKey string, body io.Reader) (*ShrinkResult, error) {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shrink", body)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.SetBasicAuth("api", apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}

	var payload shrinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("解析压缩响应失败: %w", err)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		location = payload.Output.URL
	}
	if location == "" {
		return nil, errors.New("压缩响应缺少 Location")
	}

	result := &ShrinkResult{
		Location:         location,
		InputSize:        payload.Input.Size,
		InputType:        payload.Input.Type,
		OutputSize:       payload.Output.Size,
		OutputType:       payload.Output.Type,
		CompressionCount: compressionCount(resp),
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "Shrink",
		"took":   time.Since(startTime),
		"data": logrus.Fields{
			"input_size":        result.InputSize,
			"output_size":       result.OutputSize,
			"compression_count": result.CompressionCount,
		},
	}).Debug("上游压缩完成")
	return result, nil
}

// Fetch 下载压缩结果写入 w；format 非 original 时请求格式转换
func (c *Client) Fetch(ctx context.Context, apiKey, location string, format models.Format, w io.Writer) (int64, error) {
	startTime := time.Now()

	// 凭证只发往配置的 API 主机
	location, err := c.resolveLocation(location)
	if err != nil {
		return 0, err
	}

	var req *http.Request
	if format.Converts() {
		payload, merr := json.Marshal(c.convertOptions(format))
		if merr != nil {
			return 0, fmt.Errorf("序列化转换参数失败: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, location, bytes.NewReader(payload))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	}
	if err != nil {
		return 0, fmt.Errorf("创建请求失败: %w", err)
	}
	req.SetBasicAuth("api", apiKey)

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, readError(resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &Error{Kind: KindConnection, Message: "读取压缩结果失败", Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "Fetch",
		"took":   time.Since(startTime),
		"data": logrus.Fields{
			"format": format,
			"bytes":  n,
		},
	}).Debug("下载压缩结果完成")
	return n, nil
}

// resolveLocation 将结果地址解析为绝对地址，并要求与 baseURL 同 scheme 同 host
func (c *Client) resolveLocation(location string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("解析 base_url 失败: %w", err)
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", &Error{Kind: KindUnknown, Message: "结果地址无效", Err: err}
	}
	abs := base.ResolveReference(loc)
	if !strings.EqualFold(abs.Scheme, base.Scheme) || !strings.EqualFold(abs.Host, base.Host) {
		logrus.Warnf("拒绝向非 API 主机发送凭证: %s", abs.Host)
		return "", &Error{Kind: KindUnknown, Message: abs.Host, Err: ErrForeignLocation}
	}
	return abs.String(), nil
}

// convertOptions 转换参数；webp 需要显式 quality
func (c *Client) convertOptions(format models.Format) map[string]any {
	convert := map[string]any{"type": format.MIMEType()}
	if format == models.FormatWebP {
		convert["quality"] = c.webpQuality
	}
	return map[string]any{"convert": convert}
}

// do 发送请求，网络错误统一包装为 KindConnection
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindConnection, Err: err}
	}
	return resp, nil
}

// readError 解析错误响应
func readError(resp *http.Response) error {
	e := &Error{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		e.Code = payload.Error
		e.Message = payload.Message
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

func compressionCount(resp *http.Response) int {
	v := resp.Header.Get("Compression-Count")
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
