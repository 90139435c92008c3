package client

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/teeup/internal/model"
)

// --- 手動で進めるClock ---

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance は時刻を進め、期限を迎えたタイマーを呼び出し元のゴルーチンで発火させる。
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// --- サーバーの振る舞いを模したSignupAPI ---

type fakeAPI struct {
	mu       sync.Mutex
	signups  []*model.Signup
	calls    []string
	nextID   int
	capacity int
	offline  bool
	listErr  error
	createFn func(participantID, date string) error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{capacity: 8}
}

func (f *fakeAPI) seed(participantID, date string) *model.Signup {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s := &model.Signup{ID: fmt.Sprintf("s-%d", f.nextID), ParticipantID: participantID, Date: date}
	f.signups = append(f.signups, s)
	return s
}

func (f *fakeAPI) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func (f *fakeAPI) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) countCalls(prefix string) int {
	n := 0
	for _, c := range f.callLog() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeAPI) ListSignups(ctx context.Context, from, to string) ([]*model.Signup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list")
	if f.offline {
		return nil, fmt.Errorf("%w: connection refused", ErrOffline)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*model.Signup
	for _, s := range f.signups {
		if s.Date >= from && s.Date <= to {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAPI) CreateSignup(ctx context.Context, participantID, date string) (*model.Signup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create "+date)
	if f.offline {
		return nil, fmt.Errorf("%w: connection refused", ErrOffline)
	}
	if f.createFn != nil {
		if err := f.createFn(participantID, date); err != nil {
			return nil, err
		}
	}
	count := 0
	for _, s := range f.signups {
		if s.Date != date {
			continue
		}
		if s.ParticipantID == participantID {
			return nil, model.NewDuplicateSignupError()
		}
		count++
	}
	if count >= f.capacity {
		return nil, model.NewDateFullError(f.capacity)
	}
	f.nextID++
	s := &model.Signup{ID: fmt.Sprintf("s-%d", f.nextID), ParticipantID: participantID, Date: date}
	f.signups = append(f.signups, s)
	cp := *s
	return &cp, nil
}

func (f *fakeAPI) DeleteSignup(ctx context.Context, id string) (model.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete "+id)
	if f.offline {
		return model.DeleteResult{}, fmt.Errorf("%w: connection refused", ErrOffline)
	}
	for i, s := range f.signups {
		if s.ID == id {
			f.signups = append(f.signups[:i], f.signups[i+1:]...)
			return model.DeleteResult{DeletedID: id}, nil
		}
	}
	return model.DeleteResult{DeletedID: id, AlreadyAbsent: true}, nil
}

var _ SignupAPI = (*fakeAPI)(nil)
