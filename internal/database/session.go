package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrSessionClosed 会话已结束（提交、回滚或关闭）后再次提交
var ErrSessionClosed = errors.New("database session is closed")

// =============================================================================
// 🔐 会话
// =============================================================================

// SessionState 会话状态
type SessionState int

const (
	SessionOpen SessionState = iota
	SessionCommitted
	SessionRolledBack
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionCommitted:
		return "committed"
	case SessionRolledBack:
		return "rolled_back"
	case SessionClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Session 单个工作单元独占的数据库会话，内部持有一个未提交的事务。
// 会话不能跨 goroutine 共享，也不能超出创建它的请求。
type Session interface {
	// DB 返回绑定到当前事务的 GORM 句柄
	DB() *gorm.DB
	Commit() error
	Rollback() error
	Close() error
}

// SessionSource 能够产出会话的对象，通常是 *Pool
type SessionSource interface {
	Acquire(ctx context.Context) (Session, error)
}

// gormSession 基于 GORM 事务的会话实现
type gormSession struct {
	mu    sync.Mutex
	tx    *gorm.DB
	state SessionState
}

func newGormSession(tx *gorm.DB) *gormSession {
	return &gormSession{tx: tx, state: SessionOpen}
}

func (s *gormSession) DB() *gorm.DB {
	return s.tx
}

// State 返回当前状态
func (s *gormSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *gormSession) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionOpen {
		return fmt.Errorf("%w: commit in state %s", ErrSessionClosed, s.state)
	}
	// 提交失败时保持 Open，调用方随后回滚
	if err := s.tx.Commit().Error; err != nil {
		return err
	}
	s.state = SessionCommitted
	return nil
}

func (s *gormSession) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackLocked()
}

func (s *gormSession) rollbackLocked() error {
	if s.state != SessionOpen {
		return nil
	}
	err := s.tx.Rollback().Error
	s.state = SessionRolledBack
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Close 结束会话；仍处于 Open 时先回滚。可重复调用
func (s *gormSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionClosed {
		return nil
	}
	err := s.rollbackLocked()
	s.state = SessionClosed
	return err
}

// =============================================================================
// 🎯 会话作用域
// =============================================================================

// 会话结果，用于指标与追踪
const (
	OutcomeCommitted     = "committed"
	OutcomeRolledBack    = "rolled_back"
	OutcomeCommitFailed  = "commit_failed"
	OutcomeAcquireFailed = "acquire_failed"
)

// UnitOfWork 在一个会话内执行的业务逻辑
type UnitOfWork func(ctx context.Context, sess Session) error

// Scoper 路由层拿到的唯一数据库能力：在作用域会话内执行工作单元
type Scoper interface {
	WithSession(ctx context.Context, work UnitOfWork) error
}

// OutcomeRecorder 记录会话结果
type OutcomeRecorder interface {
	RecordSession(outcome string, duration time.Duration)
}

// Scope 提供成功提交、失败回滚、始终关闭的会话作用域
type Scope struct {
	source   SessionSource
	logger   *zap.Logger
	tracer   trace.Tracer
	recorder OutcomeRecorder
}

// ScopeOption 配置 Scope
type ScopeOption func(*Scope)

// WithTracer 设置追踪器
func WithTracer(tracer trace.Tracer) ScopeOption {
	return func(s *Scope) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithRecorder 设置会话结果记录器
func WithRecorder(recorder OutcomeRecorder) ScopeOption {
	return func(s *Scope) {
		s.recorder = recorder
	}
}

// NewScope 创建会话作用域
func NewScope(source SessionSource, logger *zap.Logger, opts ...ScopeOption) *Scope {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scope{
		source: source,
		logger: logger.With(zap.String("component", "db_session")),
		tracer: otel.Tracer("github.com/BaSui01/salesflow/internal/database"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithSession 获取一个会话并执行 work。
//
//   - work 返回 nil 且 ctx 未结束：提交
//   - work 返回错误：回滚，原样返回该错误
//   - ctx 已取消：回滚，返回 ctx.Err()
//   - 提交失败：回滚，返回提交错误
//   - work panic：回滚后继续 panic
//
// 无论哪条路径 Close 都恰好执行一次，Close 的错误只记录日志。
func (s *Scope) WithSession(ctx context.Context, work UnitOfWork) (err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "db.session", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	sess, err := s.source.Acquire(ctx)
	if err != nil {
		s.finish(span, OutcomeAcquireFailed, start, err)
		return err
	}

	outcome := OutcomeRolledBack
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			s.logger.Warn("session close failed", zap.Error(cerr))
		}
		s.finish(span, outcome, start, err)
	}()

	defer func() {
		if r := recover(); r != nil {
			s.rollback(sess)
			panic(r)
		}
	}()

	if werr := work(ctx, sess); werr != nil {
		s.rollback(sess)
		return werr
	}

	if cerr := ctx.Err(); cerr != nil {
		s.rollback(sess)
		return cerr
	}

	if cerr := sess.Commit(); cerr != nil {
		outcome = OutcomeCommitFailed
		s.rollback(sess)
		return cerr
	}

	outcome = OutcomeCommitted
	return nil
}

func (s *Scope) rollback(sess Session) {
	if err := sess.Rollback(); err != nil {
		s.logger.Warn("session rollback failed", zap.Error(err))
	}
}

func (s *Scope) finish(span trace.Span, outcome string, start time.Time, err error) {
	span.SetAttributes(attribute.String("db.session.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if s.recorder != nil {
		s.recorder.RecordSession(outcome, time.Since(start))
	}
}

// Within 在作用域会话内执行 fn 并返回其结果
func Within[T any](ctx context.Context, s Scoper, fn func(ctx context.Context, sess Session) (T, error)) (T, error) {
	var out T
	err := s.WithSession(ctx, func(ctx context.Context, sess Session) error {
		v, err := fn(ctx, sess)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
