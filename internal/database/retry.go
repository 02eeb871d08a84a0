package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🔄 启动重试策略
// =============================================================================

// RetryPolicy 启动阶段的有界重试策略：固定间隔，次数上限，耗尽即失败
type RetryPolicy struct {
	// 最大尝试次数（包含第一次）
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// 两次尝试之间的固定等待
	WaitInterval time.Duration `yaml:"wait_interval" json:"wait_interval"`

	// 认证失败等永久错误也继续重试
	RetryAuthFailures bool `yaml:"retry_auth_failures" json:"retry_auth_failures"`
}

// DefaultRetryPolicy 默认 5 次，每次间隔 2 秒
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		WaitInterval: 2 * time.Second,
	}
}

// Validate 校验策略
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.WaitInterval < 0 {
		return fmt.Errorf("wait_interval cannot be negative")
	}
	return nil
}

// Do 按策略执行 op，返回实际尝试次数和最后一次的错误。
// 每次等待前以 info 级别记录尝试序号与等待时长。
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, op func(ctx context.Context, attempt int) error) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := op(ctx, attempts)
		if err != nil && !p.RetryAuthFailures && IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.WaitInterval)),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Info("database not ready, retrying",
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", p.MaxAttempts),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}),
	)

	// 最后一次尝试返回的 Permanent 不会被解包
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return attempts, err
}

// IsPermanent 判断错误是否不值得重试：连接串错误与认证失败
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrUnsupportedScheme) {
		return true
	}

	// SQLSTATE 28xxx: invalid authorization specification
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "28")
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1045: // ER_DBACCESS_DENIED_ERROR, ER_ACCESS_DENIED_ERROR
			return true
		}
	}
	return false
}

// =============================================================================
// 🚀 启动初始化
// =============================================================================

// FatalInitError 初始化失败（重试耗尽或遇到永久错误），进程不应继续启动
type FatalInitError struct {
	Attempts int
	Target   string
	Err      error
}

func (e *FatalInitError) Error() string {
	return fmt.Sprintf("database initialization failed after %d attempt(s) against %s: %v", e.Attempts, e.Target, e.Err)
}

func (e *FatalInitError) Unwrap() error {
	return e.Err
}

// SchemaSetupFunc 幂等的建表函数（不存在才创建）
type SchemaSetupFunc func(ctx context.Context, db *gorm.DB) error

// SchemaTarget 初始化作用的目标，通常是 *Pool
type SchemaTarget interface {
	DB() *gorm.DB
	Target() string
}

// Attempt 一次初始化尝试的记录，只在重试循环期间存在
type Attempt struct {
	Number int
	Err    error
	// 下一次尝试前的等待；最后一次为 0
	Wait time.Duration
}

// InitOption 配置 Initialize
type InitOption func(*initOptions)

type initOptions struct {
	observe func(Attempt)
}

// WithAttemptObserver 每次尝试结束后回调
func WithAttemptObserver(fn func(Attempt)) InitOption {
	return func(o *initOptions) {
		o.observe = fn
	}
}

// Initialize 在有界重试下执行 setup。
// 重试耗尽或遇到永久错误时返回 *FatalInitError，日志中的目标均已脱敏。
func Initialize(ctx context.Context, target SchemaTarget, setup SchemaSetupFunc, policy RetryPolicy, logger *zap.Logger, opts ...InitOption) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.With(zap.String("component", "db_init"), zap.String("target", target.Target()))
	log.Info("connecting to database",
		zap.Int("max_attempts", policy.MaxAttempts),
		zap.Duration("wait_interval", policy.WaitInterval),
	)

	attempts, err := policy.Do(ctx, log, func(ctx context.Context, attempt int) error {
		err := setup(ctx, target.DB().WithContext(ctx))
		if o.observe != nil {
			a := Attempt{Number: attempt, Err: err}
			if err != nil && attempt < policy.MaxAttempts && (policy.RetryAuthFailures || !IsPermanent(err)) {
				a.Wait = policy.WaitInterval
			}
			o.observe(a)
		}
		return err
	})
	if err != nil {
		log.Error("database initialization failed",
			zap.Int("attempts", attempts),
			zap.Bool("permanent", IsPermanent(err)),
			zap.Error(err),
		)
		return &FatalInitError{Attempts: attempts, Target: target.Target(), Err: err}
	}

	log.Info("database initialized", zap.Int("attempts", attempts))
	return nil
}
