package client

import (
	"context"
	"log/slog"
	"time"
)

// HealthProber はサーバーの疎通確認を行う。*APIが実装する。
type HealthProber interface {
	Health(ctx context.Context) error
}

// ConnectivitySink は疎通確認の結果を受け取る。*Storeが実装する。
type ConnectivitySink interface {
	SetOnline(ctx context.Context, online bool) error
}

// Monitor は定期的にサーバーの疎通を確認し、結果をストアへ通知する。
type Monitor struct {
	prober   HealthProber
	sink     ConnectivitySink
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewMonitor はMonitorを生成する。
func NewMonitor(prober HealthProber, sink ConnectivitySink, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		prober:   prober,
		sink:     sink,
		interval: interval,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// Probe は1回疎通確認を行い、結果をストアへ通知する。オンラインならtrueを返す。
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Health(probeCtx)
	cancel()

	online := err == nil
	if err != nil {
		m.logger.Debug("health probe failed", slog.String("error", err.Error()))
	}
	if serr := m.sink.SetOnline(ctx, online); serr != nil {
		m.logger.Warn("オフラインキューの再送に失敗しました", slog.String("error", serr.Error()))
	}
	return online
}

// Run はctxがキャンセルされるまで定期的に疎通確認を行う。起動直後に1回確認する。
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

var _ HealthProber = (*API)(nil)
var _ ConnectivitySink = (*Store)(nil)
