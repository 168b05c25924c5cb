package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MockEntry is one line of the mock SMS log.
type MockEntry struct {
	Timestamp string `json:"timestamp"`
	To        string `json:"to"`
	Message   string `json:"message"`
	Status    string `json:"status"`
}

// MockLog "sends" SMS by appending them to a JSON array file.
type MockLog struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// NewMockLog writes to path.
func NewMockLog(path string) *MockLog {
	return &MockLog{path: path, now: time.Now}
}

// Name returns "mock".
func (m *MockLog) Name() string { return "mock" }

// Send appends the message to the log file.
func (m *MockLog) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.read()
	if err != nil {
		return "", err
	}

	e := MockEntry{
		Timestamp: m.now().Format("2006-01-02 15:04:05"),
		To:        to,
		Message:   body,
		Status:    "SENT (MOCK)",
	}
	entries = append(entries, e)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(m.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create sms log dir: %w", err)
		}
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return "", fmt.Errorf("write sms log: %w", err)
	}
	return fmt.Sprintf("mock-%d", len(entries)), nil
}

// Entries returns the current log contents.
func (m *MockLog) Entries() ([]MockEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read()
}

// read tolerates a missing or corrupt file, starting a fresh log.
func (m *MockLog) read() ([]MockEntry, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sms log: %w", err)
	}
	var entries []MockEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil
	}
	return entries, nil
}
