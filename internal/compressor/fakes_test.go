package compressor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"image-compressor/internal/models"
	"image-compressor/internal/tinify"
)

type fakeCredentials struct {
	mu       sync.Mutex
	keys     map[int64]string
	gets     int
	getErr   error
	saveErr  error
	afterGet func() // 读取完成、返回之前调用
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{keys: make(map[int64]string)}
}

func (f *fakeCredentials) GetAPIKey(_ context.Context, userID int64) (string, bool, error) {
	f.mu.Lock()
	f.gets++
	if f.getErr != nil {
		f.mu.Unlock()
		return "", false, f.getErr
	}
	key, ok := f.keys[userID]
	hook := f.afterGet
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return key, ok, nil
}

func (f *fakeCredentials) SaveAPIKey(_ context.Context, userID int64, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.keys[userID] = key
	return nil
}

func (f *fakeCredentials) DeleteAPIKey(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.keys[userID]
	delete(f.keys, userID)
	return ok, nil
}

func (f *fakeCredentials) lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

type lifetime struct {
	files, bytes int64
	last         time.Time
}

type fakeUsage struct {
	mu           sync.Mutex
	daily        map[string]models.UsageRecord
	lifetime     map[int64]lifetime
	failDaily    bool
	failLifetime bool
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{daily: make(map[string]models.UsageRecord), lifetime: make(map[int64]lifetime)}
}

func dailyKey(userID int64, date string) string {
	return fmt.Sprintf("%d/%s", userID, date)
}

func (f *fakeUsage) IncrementDaily(_ context.Context, userID int64, date string, files, bytesSaved int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDaily {
		return errors.New("daily write failed")
	}
	rec := f.daily[dailyKey(userID, date)]
	rec.UserID, rec.Date = userID, date
	rec.FilesCount += files
	rec.BytesSaved += bytesSaved
	f.daily[dailyKey(userID, date)] = rec
	return nil
}

func (f *fakeUsage) IncrementLifetime(_ context.Context, userID int64, files, bytesSaved int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLifetime {
		return errors.New("lifetime write failed")
	}
	lt := f.lifetime[userID]
	lt.files += files
	lt.bytes += bytesSaved
	lt.last = at
	f.lifetime[userID] = lt
	return nil
}

func (f *fakeUsage) GetDaily(_ context.Context, userID int64, date string) (models.UsageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.daily[dailyKey(userID, date)]
	if !ok {
		return models.UsageRecord{UserID: userID, Date: date}, nil
	}
	return rec, nil
}

func (f *fakeUsage) GetLifetime(_ context.Context, userID int64) (int64, int64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lt := f.lifetime[userID]
	return lt.files, lt.bytes, lt.last, nil
}

type fakeProvider struct {
	mu         sync.Mutex
	output     []byte
	shrinkErr  error
	fetchErr   error
	shrinks    int
	lastKey    string
	lastFormat models.Format
}

func (f *fakeProvider) Shrink(ctx context.Context, apiKey string, body io.Reader) (*tinify.ShrinkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shrinks++
	f.lastKey = apiKey
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.shrinkErr != nil {
		return nil, f.shrinkErr
	}
	n, _ := io.Copy(io.Discard, body)
	return &tinify.ShrinkResult{
		Location:         "https://api.tinify.test/output/1",
		InputSize:        n,
		OutputSize:       int64(len(f.output)),
		CompressionCount: 3,
	}, nil
}

func (f *fakeProvider) Fetch(_ context.Context, _ string, _ string, format models.Format, w io.Writer) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFormat = format
	if f.fetchErr != nil {
		// 模拟写了一半后失败
		_, _ = w.Write([]byte("partial"))
		return 0, f.fetchErr
	}
	return io.Copy(w, bytes.NewReader(f.output))
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shrinks
}

type fakeCallLog struct {
	mu      sync.Mutex
	entries []models.APICallLog
}

func (f *fakeCallLog) SaveAPICallLog(_ context.Context, entry models.APICallLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}
