package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hitoshi/teeup/internal/model"
)

// PendingChange はサーバー未反映の申込変更。
type PendingChange struct {
	Date     string             `json:"date"`
	Action   model.SignupAction `json:"action"`
	QueuedAt time.Time          `json:"queuedAt"`

	seq uint64
}

// QueueStorage はオフライン中の変更を参加者ごとに永続化する。
type QueueStorage interface {
	Load(participantID string) ([]PendingChange, error)
	Save(participantID string, changes []PendingChange) error
	Clear(participantID string) error
}

// queueFileVersion はキューファイルの形式バージョン。
const queueFileVersion = 1

type queueFile struct {
	Version       int             `json:"version"`
	ParticipantID string          `json:"participantId"`
	Changes       []PendingChange `json:"changes"`
}

// FileQueueStorage は参加者ごとに1つのJSONファイルへキューを保存する。
// 書き込みは一時ファイルからのリネームで行い、途中で中断しても既存の内容を壊さない。
type FileQueueStorage struct {
	dir string
	mu  sync.Mutex
}

// NewFileQueueStorage は保存先ディレクトリを作成してFileQueueStorageを返す。
func NewFileQueueStorage(dir string) (*FileQueueStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("キュー保存先の作成に失敗しました: %w", err)
	}
	return &FileQueueStorage{dir: dir}, nil
}

func (s *FileQueueStorage) path(participantID string) string {
	return filepath.Join(s.dir, "queue-"+url.PathEscape(participantID)+".json")
}

// Load は保存されたキューを返す。ファイルがない場合は空を返す。
func (s *FileQueueStorage) Load(participantID string) ([]PendingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(participantID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キューの読み込みに失敗しました: %w", err)
	}

	var f queueFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("キューの解析に失敗しました: %w", err)
	}
	if f.Version != queueFileVersion {
		return nil, fmt.Errorf("未対応のキュー形式です: version=%d", f.Version)
	}
	return f.Changes, nil
}

// Save はキューを保存する。空の場合はファイルを削除する。
func (s *FileQueueStorage) Save(participantID string, changes []PendingChange) error {
	if len(changes) == 0 {
		return s.Clear(participantID)
	}

	data, err := json.MarshalIndent(queueFile{
		Version:       queueFileVersion,
		ParticipantID: participantID,
		Changes:       changes,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("キューのエンコードに失敗しました: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("キューの書き込みに失敗しました: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("キューの書き込みに失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("キューの書き込みに失敗しました: %w", err)
	}
	if err := os.Rename(tmpName, s.path(participantID)); err != nil {
		return fmt.Errorf("キューの保存に失敗しました: %w", err)
	}
	return nil
}

// Clear は保存されたキューを削除する。
func (s *FileQueueStorage) Clear(participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(participantID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("キューの削除に失敗しました: %w", err)
	}
	return nil
}

// MemoryQueueStorage はプロセス内だけで保持するQueueStorage。
type MemoryQueueStorage struct {
	mu     sync.Mutex
	queues map[string][]PendingChange
}

// NewMemoryQueueStorage はMemoryQueueStorageを生成する。
func NewMemoryQueueStorage() *MemoryQueueStorage {
	return &MemoryQueueStorage{queues: make(map[string][]PendingChange)}
}

func (s *MemoryQueueStorage) Load(participantID string) ([]PendingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PendingChange(nil), s.queues[participantID]...), nil
}

func (s *MemoryQueueStorage) Save(participantID string, changes []PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(changes) == 0 {
		delete(s.queues, participantID)
		return nil
	}
	s.queues[participantID] = append([]PendingChange(nil), changes...)
	return nil
}

func (s *MemoryQueueStorage) Clear(participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, participantID)
	return nil
}

var _ QueueStorage = (*FileQueueStorage)(nil)
var _ QueueStorage = (*MemoryQueueStorage)(nil)
