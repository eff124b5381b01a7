package compressor

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"image-compressor/internal/models"
	"image-compressor/internal/tinify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, dir string, size int) string {
	t.Helper()
	path := filepath.Join(dir, "input.png")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xAB}, size), 0o644))
	return path
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestExecuteSuccess(t *testing.T) {
	dir := t.TempDir()
	provider := &fakeProvider{output: bytes.Repeat([]byte{1}, 400)}
	e := NewExecutor(provider, time.Second)

	job := models.CompressionJob{
		InputPath:  writeInput(t, dir, 1000),
		OutputPath: filepath.Join(dir, "out.png"),
		UserID:     1,
	}
	res := e.Execute(context.Background(), job, "key")

	require.True(t, res.Success)
	assert.Equal(t, int64(1000), res.OriginalSize)
	assert.Equal(t, int64(400), res.CompressedSize)
	assert.Equal(t, int64(600), res.SavedBytes)
	assert.InDelta(t, 60.0, res.SavedPercentage, 1e-9)
	assert.Equal(t, models.FormatOriginal, res.FormatUsed)
	assert.Equal(t, models.ErrorKindNone, res.ErrorKind)
	assert.Equal(t, job.OutputPath, res.OutputPath)
	assert.ElementsMatch(t, []string{"input.png", "out.png"}, listDir(t, dir))
	assert.Equal(t, "key", provider.lastKey)
}

func TestExecuteWebPForcesExtension(t *testing.T) {
	dir := t.TempDir()
	provider := &fakeProvider{output: []byte("webp-bytes")}
	e := NewExecutor(provider, time.Second)

	res := e.Execute(context.Background(), models.CompressionJob{
		InputPath:    writeInput(t, dir, 100),
		OutputPath:   filepath.Join(dir, "photo.jpg"),
		TargetFormat: models.FormatWebP,
	}, "key")

	require.True(t, res.Success)
	assert.Equal(t, filepath.Join(dir, "photo.webp"), res.OutputPath)
	assert.Equal(t, models.FormatWebP, provider.lastFormat)
	assert.FileExists(t, res.OutputPath)
	assert.NoFileExists(t, filepath.Join(dir, "photo.jpg"))
}

func TestExecuteRejectsInvalidInputWithoutRemoteCall(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.png")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	valid := writeInput(t, dir, 10)

	tests := []struct {
		name string
		job  models.CompressionJob
	}{
		{"missing input", models.CompressionJob{InputPath: filepath.Join(dir, "nope.png"), OutputPath: filepath.Join(dir, "o.png")}},
		{"empty input", models.CompressionJob{InputPath: empty, OutputPath: filepath.Join(dir, "o.png")}},
		{"input is directory", models.CompressionJob{InputPath: dir, OutputPath: filepath.Join(dir, "o.png")}},
		{"missing output dir", models.CompressionJob{InputPath: valid, OutputPath: filepath.Join(dir, "missing", "o.png")}},
		{"empty output path", models.CompressionJob{InputPath: valid}},
		{"unsupported format", models.CompressionJob{InputPath: valid, OutputPath: filepath.Join(dir, "o.gif"), TargetFormat: "gif"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{output: []byte("x")}
			res := NewExecutor(provider, time.Second).Execute(context.Background(), tt.job, "key")

			assert.False(t, res.Success)
			assert.Equal(t, models.ErrorKindClientInputInvalid, res.ErrorKind)
			assert.Zero(t, provider.calls())
			assert.Contains(t, []models.Format{models.FormatOriginal, models.FormatWebP, models.FormatJPEG, models.FormatPNG}, res.FormatUsed)
		})
	}
}

func TestExecuteUnknownFormatReportsOriginal(t *testing.T) {
	dir := t.TempDir()
	job := models.CompressionJob{
		InputPath:    writeInput(t, dir, 10),
		OutputPath:   filepath.Join(dir, "o.bin"),
		TargetFormat: "../../etc/<script>",
	}

	res := NewExecutor(&fakeProvider{output: []byte("x")}, time.Second).Execute(context.Background(), job, "key")

	assert.Equal(t, models.ErrorKindClientInputInvalid, res.ErrorKind)
	assert.Equal(t, models.FormatOriginal, res.FormatUsed)
}

func TestExecuteRemoteFailuresLeaveNoOutput(t *testing.T) {
	tests := []struct {
		name      string
		shrinkErr error
		fetchErr  error
		want      models.ErrorKind
	}{
		{"auth", &tinify.Error{Kind: tinify.KindAccount, Status: http.StatusUnauthorized}, nil, models.ErrorKindCredentialInvalid},
		{"quota", &tinify.Error{Kind: tinify.KindAccount, Status: http.StatusTooManyRequests}, nil, models.ErrorKindCredentialInvalid},
		{"bad image", &tinify.Error{Kind: tinify.KindClient, Status: http.StatusUnsupportedMediaType}, nil, models.ErrorKindClientInputInvalid},
		{"server", &tinify.Error{Kind: tinify.KindServer, Status: http.StatusServiceUnavailable}, nil, models.ErrorKindServiceUnavailable},
		{"network", &tinify.Error{Kind: tinify.KindConnection, Err: errors.New("reset")}, nil, models.ErrorKindServiceUnavailable},
		{"download fails", nil, &tinify.Error{Kind: tinify.KindConnection, Err: errors.New("eof")}, models.ErrorKindServiceUnavailable},
		{"unexpected", errors.New("weird"), nil, models.ErrorKindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			provider := &fakeProvider{output: []byte("x"), shrinkErr: tt.shrinkErr, fetchErr: tt.fetchErr}
			res := NewExecutor(provider, time.Second).Execute(context.Background(), models.CompressionJob{
				InputPath:  writeInput(t, dir, 10),
				OutputPath: filepath.Join(dir, "out.png"),
			}, "key")

			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.ErrorKind)
			assert.Equal(t, []string{"input.png"}, listDir(t, dir))
		})
	}
}

func TestExecuteReportsCompressionCount(t *testing.T) {
	dir := t.TempDir()
	e := NewExecutor(&fakeProvider{output: []byte("x")}, time.Second)
	var seen int
	e.OnCompressionCount(func(n int) { seen = n })

	e.Execute(context.Background(), models.CompressionJob{
		InputPath:  writeInput(t, dir, 10),
		OutputPath: filepath.Join(dir, "out.png"),
	}, "key")
	assert.Equal(t, 3, seen)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, models.ErrorKindServiceUnavailable, classify(context.DeadlineExceeded))
	assert.Equal(t, models.ErrorKindUnknown, classify(errors.New("x")))
	assert.Equal(t, models.ErrorKindCredentialInvalid, classify(&tinify.Error{Kind: tinify.KindAccount}))
}

func TestOutputPathFor(t *testing.T) {
	assert.Equal(t, "/a/b.webp", OutputPathFor("/a/b.png", models.FormatWebP))
	assert.Equal(t, "/a/b.WEBP", OutputPathFor("/a/b.WEBP", models.FormatWebP))
	assert.Equal(t, "/a/b.webp", OutputPathFor("/a/b", models.FormatWebP))
	assert.Equal(t, "/a/b.png", OutputPathFor("/a/b.png", models.FormatJPEG))
}
