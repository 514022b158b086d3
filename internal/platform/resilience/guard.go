package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen はサーキットブレーカーが開いていて呼び出しを行わなかった場合のエラー
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Settings は Guard の設定
type Settings struct {
	Name string

	// RequestsPerSecond が 0 以下の場合はレート制限しない
	RequestsPerSecond float64
	Burst             int

	// BreakerTimeout はオープン状態からハーフオープンに移るまでの時間
	BreakerTimeout time.Duration
	// MinRequests 件以上の呼び出しで失敗率が FailureRatio 以上になるとオープンする
	MinRequests  uint32
	FailureRatio float64
}

// DefaultSettings はデフォルト設定を返す
func DefaultSettings(name string) Settings {
	return Settings{
		Name:              name,
		RequestsPerSecond: 10,
		Burst:             5,
		BreakerTimeout:    30 * time.Second,
		MinRequests:       5,
		FailureRatio:      0.6,
	}
}

// Guard は外部サービス呼び出しをレート制限とサーキットブレーカーで保護する
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// Option は Guard のオプション設定
type Option func(*Guard)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// New は新しい Guard を作成する
func New(settings Settings, opts ...Option) *Guard {
	g := &Guard{
		name:   settings.Name,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}

	if settings.RequestsPerSecond > 0 {
		burst := settings.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(settings.RequestsPerSecond), burst)
	}

	minRequests := settings.MinRequests
	if minRequests == 0 {
		minRequests = 1
	}
	ratio := settings.FailureRatio
	if ratio <= 0 {
		ratio = 1
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			g.logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return g
}

// Name はガード名を返す
func (g *Guard) Name() string {
	return g.name
}

// State はサーキットブレーカーの状態を返す
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// Call は fn をレート制限とサーキットブレーカーの下で実行する
// g が nil の場合は fn をそのまま呼び出す
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}

	var zero T
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("%s: rate limiter wait: %w", g.name, err)
		}
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: %w", g.name, ErrCircuitOpen)
		}
		return zero, err
	}

	return result.(T), nil
}
