package client

import "time"

// Clock はデバウンスとオンライン判定の時刻源。テストでは手動で進める実装に差し替える。
type Clock interface {
	Now() time.Time
	// AfterFunc はd経過後にfを別ゴルーチンで呼び出すタイマーを開始する。
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer はClock.AfterFuncが返すタイマー。
type Timer interface {
	// Stop はタイマーを停止する。発火前に停止できた場合はtrueを返す。
	Stop() bool
}

type systemClock struct{}

// SystemClock は実時間のClockを返す。
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
