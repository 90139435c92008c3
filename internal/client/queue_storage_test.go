package client

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/teeup/internal/model"
)

func TestFileQueueStorage_SaveLoadClear(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileQueueStorage(dir)
	if err != nil {
		t.Fatalf("NewFileQueueStorage returned error: %v", err)
	}

	queuedAt := time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)
	changes := []PendingChange{
		{Date: "2025-06-10", Action: model.SignupActionAdd, QueuedAt: queuedAt},
		{Date: "2025-06-11", Action: model.SignupActionRemove, QueuedAt: queuedAt},
	}
	if err := storage.Save("p/1", changes); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := storage.Load("p/1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Date != "2025-06-11" || got[1].Action != model.SignupActionRemove || !got[1].QueuedAt.Equal(queuedAt) {
		t.Errorf("got[1] = %+v", got[1])
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 file, got %d", len(entries))
	}
	if strings.HasSuffix(entries[0].Name(), ".tmp") {
		t.Errorf("temporary file left behind: %s", entries[0].Name())
	}

	if err := storage.Clear("p/1"); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	got, err = storage.Load("p/1")
	if err != nil {
		t.Fatalf("Load after Clear returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty queue after Clear, got %+v", got)
	}
}

func TestFileQueueStorage_SeparatesParticipants(t *testing.T) {
	storage, err := NewFileQueueStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileQueueStorage returned error: %v", err)
	}

	storage.Save("p-1", []PendingChange{{Date: "2025-06-10", Action: model.SignupActionAdd}})
	storage.Save("p-2", []PendingChange{{Date: "2025-06-12", Action: model.SignupActionAdd}})

	got, _ := storage.Load("p-2")
	if len(got) != 1 || got[0].Date != "2025-06-12" {
		t.Errorf("p-2 queue = %+v", got)
	}
}

func TestFileQueueStorage_SaveEmptyRemovesFile(t *testing.T) {
	dir := t.TempDir()
	storage, _ := NewFileQueueStorage(dir)

	storage.Save("p-1", []PendingChange{{Date: "2025-06-10", Action: model.SignupActionAdd}})
	if err := storage.Save("p-1", nil); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files, got %d", len(entries))
	}
	if err := storage.Clear("p-1"); err != nil {
		t.Errorf("Clear on missing file returned error: %v", err)
	}
}

func TestFileQueueStorage_RejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	storage, _ := NewFileQueueStorage(dir)

	path := filepath.Join(dir, "queue-p-1.json")
	if err := os.WriteFile(path, []byte(`{"version":99,"changes":[]}`), 0o600); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	if _, err := storage.Load("p-1"); err == nil {
		t.Error("expected error for unknown version")
	}
}

func TestStore_PersistsOfflineQueueAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileQueueStorage(dir)
	if err != nil {
		t.Fatalf("NewFileQueueStorage returned error: %v", err)
	}

	api := newFakeAPI()
	api.setOffline(true)
	first, _ := newTestStore(t, api, storage)
	first.Toggle("2025-06-10")
	first.Flush(t.Context())

	// 新しいプロセスを想定して別インスタンスで読み直す
	reopened, err := NewFileQueueStorage(dir)
	if err != nil {
		t.Fatalf("NewFileQueueStorage returned error: %v", err)
	}
	api.setOffline(false)
	second, _ := newTestStore(t, api, reopened)
	if second.Online() {
		t.Fatal("restarted store should start offline")
	}
	if err := second.SetOnline(t.Context(), true); err != nil {
		t.Fatalf("SetOnline returned error: %v", err)
	}
	if !second.IsBooked("2025-06-10") {
		t.Error("replayed signup should be booked")
	}
	if got, _ := reopened.Load(me); len(got) != 0 {
		t.Errorf("queue file should be cleared, got %+v", got)
	}
}
