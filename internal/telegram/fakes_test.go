package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"image-compressor/internal/config"
	"image-compressor/internal/dialog"
	"image-compressor/internal/models"
	"image-compressor/internal/storage"
	"image-compressor/internal/task"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const adminID int64 = 1

// fakeBot 记录所有发出的请求
type fakeBot struct {
	mu         sync.Mutex
	sent       []tgbotapi.Chattable
	requests   []tgbotapi.Chattable
	nextID     int
	sendErrs   []error
	requestErr func(c tgbotapi.Chattable) error
	fileURL    string
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if f.requestErr != nil {
		if err := f.requestErr(c); err != nil {
			return nil, err
		}
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("no file url")
	}
	return f.fileURL + "/" + fileID, nil
}

// texts 按顺序返回发送与编辑的文本（文档取 caption）
func (f *fakeBot) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		case tgbotapi.DocumentConfig:
			out = append(out, m.Caption)
		}
	}
	return out
}

func (f *fakeBot) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		case tgbotapi.EditMessageTextConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		}
	}
	return out
}

func (f *fakeBot) lastText() string {
	t := f.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

func (f *fakeBot) lastTextTo(chatID int64) string {
	t := f.textsTo(chatID)
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

func (f *fakeBot) documents() []tgbotapi.DocumentConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.DocumentConfig
	for _, c := range f.sent {
		if d, ok := c.(tgbotapi.DocumentConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeBot) deletes() []tgbotapi.DeleteMessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.DeleteMessageConfig
	for _, c := range f.requests {
		if d, ok := c.(tgbotapi.DeleteMessageConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeBot) copies() []tgbotapi.CopyMessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.CopyMessageConfig
	for _, c := range f.requests {
		if d, ok := c.(tgbotapi.CopyMessageConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

func countText(texts []string, want string) int {
	n := 0
	for _, t := range texts {
		if strings.Contains(t, want) {
			n++
		}
	}
	return n
}

type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]models.User
	settings map[int64]models.UserSettings
	actions  []models.UserActionLog
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[int64]models.User{}, settings: map[int64]models.UserSettings{}}
}

func (s *fakeStore) SaveUser(_ context.Context, userID int64, username, firstName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return false, s.saveErr
	}
	u, ok := s.users[userID]
	u.UserID, u.Username, u.FirstName = userID, username, firstName
	s.users[userID] = u
	return !ok, nil
}

func (s *fakeStore) IsBanned(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID].Banned, nil
}

func (s *fakeStore) BanUser(_ context.Context, userID int64, reason string, by int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	switch {
	case !ok:
		return storage.ErrUserNotFound
	case u.Banned:
		return storage.ErrAlreadyBanned
	}
	u.Banned, u.BanReason, u.BannedBy, u.BannedAt = true, reason, by, time.Now()
	s.users[userID] = u
	return nil
}

func (s *fakeStore) UnbanUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	switch {
	case !ok:
		return storage.ErrUserNotFound
	case !u.Banned:
		return storage.ErrNotBanned
	}
	u.Banned = false
	s.users[userID] = u
	return nil
}

func (s *fakeStore) ListBanned(context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Banned {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *fakeStore) ListActiveUserIDs(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for id, u := range s.users {
		if !u.Banned {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeStore) GetSettings(_ context.Context, userID int64) (models.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.settings[userID]; ok {
		return st, nil
	}
	return models.DefaultSettings(userID), nil
}

func (s *fakeStore) UpdateDefaultFormat(_ context.Context, userID int64, format models.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[userID]
	if !ok {
		st = models.DefaultSettings(userID)
	}
	st.DefaultFormat = format
	s.settings[userID] = st
	return nil
}

func (s *fakeStore) SaveUserAction(_ context.Context, entry models.UserActionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, entry)
	return nil
}

func (s *fakeStore) AdminStats(_ context.Context, now time.Time) (*models.AdminStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.users))
	return &models.AdminStats{Users: models.PeriodCounts{Total: n, Today: n}, GeneratedAt: now}, nil
}

func (s *fakeStore) actionNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.actions {
		out = append(out, a.Action)
	}
	return out
}

type fakeKeys struct {
	mu   sync.Mutex
	keys map[int64]string
}

func (k *fakeKeys) SetKey(_ context.Context, userID int64, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(key) != 32 {
		return errors.New("invalid api key format")
	}
	k.keys[userID] = key
	return nil
}

func (k *fakeKeys) RemoveKey(_ context.Context, userID int64) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.keys[userID]
	delete(k.keys, userID)
	return ok, nil
}

func (k *fakeKeys) HasCustomKey(_ context.Context, userID int64) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.keys[userID]
	return ok, nil
}

type compressCall struct {
	UserID int64
	Input  string
	Format models.Format
}

type fakeCompressor struct {
	mu     sync.Mutex
	calls  []compressCall
	result func(call compressCall) models.Result
	stats  models.UsageStats
}

func (c *fakeCompressor) Compress(_ context.Context, userID int64, inputPath string, target models.Format) models.Result {
	call := compressCall{UserID: userID, Input: inputPath, Format: target}
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
	if c.result == nil {
		return models.Failed(models.ErrorKindUnknown, target)
	}
	return c.result(call)
}

func (c *fakeCompressor) Stats(context.Context, int64) (models.UsageStats, error) {
	return c.stats, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	tasks    []task.Task
	full     bool
	canceled []int64
}

func (q *fakeQueue) Enqueue(t task.Task) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return 0, task.ErrQueueFull
	}
	q.tasks = append(q.tasks, t)
	return len(q.tasks), nil
}

func (q *fakeQueue) Cancel(userID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.canceled = append(q.canceled, userID)
	n := 0
	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if t.UserID == userID {
			n++
			if t.Drop != nil {
				t.Drop()
			}
			continue
		}
		kept = append(kept, t)
	}
	q.tasks = kept
	return n
}

func (q *fakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// runAll 同步执行所有排队任务
func (q *fakeQueue) runAll(ctx context.Context) {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, t := range tasks {
		t.Run(ctx)
	}
}

type fakeLimiter struct {
	allow bool
	wait  time.Duration
}

func (l *fakeLimiter) Allow(context.Context, int64) (bool, time.Duration) {
	return l.allow, l.wait
}

type harness struct {
	bot        *Bot
	api        *fakeBot
	store      *fakeStore
	keys       *fakeKeys
	compressor *fakeCompressor
	queue      *fakeQueue
	cfg        *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		Telegram:  config.TelegramConfig{AdminIDs: []int64{adminID}, LogChannelID: -100, HTTPTimeout: 5 * time.Second},
		Files:     config.FilesConfig{TempDir: t.TempDir(), MaxFileSize: 5 * 1024 * 1024},
		Broadcast: config.BroadcastConfig{BatchSize: 2},
	}
	h := &harness{
		api:        &fakeBot{},
		store:      newFakeStore(),
		keys:       &fakeKeys{keys: map[int64]string{}},
		compressor: &fakeCompressor{},
		queue:      &fakeQueue{},
		cfg:        cfg,
	}
	h.bot = NewBot(h.api, cfg, Deps{
		Compressor: h.compressor,
		Keys:       h.keys,
		Store:      h.store,
		Queue:      h.queue,
		Dialogs:    dialog.NewManager(time.Minute),
		Channel:    NewChannelLogger(h.api, cfg.Telegram.LogChannelID),
	})
	return h
}

func textMsg(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 100,
		From:      &tgbotapi.User{ID: userID, UserName: "user"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}
}

func commandMsg(userID int64, text string) *tgbotapi.Message {
	msg := textMsg(userID, text)
	cmd := strings.Fields(text)[0]
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return msg
}

func (h *harness) message(msg *tgbotapi.Message) {
	h.bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func (h *harness) callback(userID int64, data string) {
	h.bot.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 50, Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}})
}
