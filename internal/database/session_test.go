package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"pgregory.net/rapid"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

type fakeSession struct {
	mu          sync.Mutex
	calls       []string
	commitErr   error
	rollbackErr error
	closeErr    error
}

func (f *fakeSession) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSession) DB() *gorm.DB { return nil }

func (f *fakeSession) Commit() error {
	f.record("commit")
	return f.commitErr
}

func (f *fakeSession) Rollback() error {
	f.record("rollback")
	return f.rollbackErr
}

func (f *fakeSession) Close() error {
	f.record("close")
	return f.closeErr
}

func (f *fakeSession) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeSource struct {
	sess *fakeSession
	err  error
}

func (s *fakeSource) Acquire(context.Context) (Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sess, nil
}

type outcomeLog struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *outcomeLog) RecordSession(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

// =============================================================================
// 🧪 Scope 测试
// =============================================================================

func TestScope_CommitThenClose(t *testing.T) {
	sess := &fakeSession{}
	rec := &outcomeLog{}
	scope := NewScope(&fakeSource{sess: sess}, zap.NewNop(), WithRecorder(rec))

	called := false
	err := scope.WithSession(context.Background(), func(ctx context.Context, s Session) error {
		called = true
		assert.Same(t, sess, s)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []string{"commit", "close"}, sess.calls)
	assert.Equal(t, []string{OutcomeCommitted}, rec.outcomes)
}

func TestScope_RollbackReturnsOriginalError(t *testing.T) {
	sess := &fakeSession{}
	rec := &outcomeLog{}
	scope := NewScope(&fakeSource{sess: sess}, zap.NewNop(), WithRecorder(rec))

	workErr := errors.New("lead not found")
	err := scope.WithSession(context.Background(), func(context.Context, Session) error {
		return workErr
	})

	assert.Same(t, workErr, err)
	assert.Equal(t, []string{"rollback", "close"}, sess.calls)
	assert.Equal(t, []string{OutcomeRolledBack}, rec.outcomes)
}

func TestScope_CommitFailure(t *testing.T) {
	commitErr := errors.New("serialization failure")
	sess := &fakeSession{commitErr: commitErr}
	rec := &outcomeLog{}
	scope := NewScope(&fakeSource{sess: sess}, zap.NewNop(), WithRecorder(rec))

	err := scope.WithSession(context.Background(), func(context.Context, Session) error {
		return nil
	})

	assert.Same(t, commitErr, err)
	assert.Equal(t, []string{"commit", "rollback", "close"}, sess.calls)
	assert.Equal(t, []string{OutcomeCommitFailed}, rec.outcomes)
}

func TestScope_CloseFailureIsLoggedNotRaised(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sess := &fakeSession{closeErr: errors.New("connection reset")}
	scope := NewScope(&fakeSource{sess: sess}, zap.New(core))

	err := scope.WithSession(context.Background(), func(context.Context, Session) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"commit", "close"}, sess.calls)
	require.Equal(t, 1, logs.FilterMessage("session close failed").Len())
}

func TestScope_CloseFailureDoesNotMaskWorkError(t *testing.T) {
	sess := &fakeSession{closeErr: errors.New("connection reset"), rollbackErr: errors.New("rollback failed")}
	scope := NewScope(&fakeSource{sess: sess}, zap.NewNop())

	workErr := errors.New("boom")
	err := scope.WithSession(context.Background(), func(context.Context, Session) error {
		return workErr
	})

	assert.Same(t, workErr, err)
	assert.Equal(t, 1, sess.count("close"))
}

func TestScope_CancellationRollsBack(t *testing.T) {
	sess := &fakeSession{}
	scope := NewScope(&fakeSource{sess: sess}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	err := scope.WithSession(ctx, func(context.Context, Session) error {
		cancel()
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"rollback", "close"}, sess.calls)
}

func TestScope_PanicRollsBackAndClosesOnce(t *testing.T) {
	sess := &fakeSession{}
	scope := NewScope(&fakeSource{sess: sess}, zap.NewNop())

	assert.PanicsWithValue(t, "handler bug", func() {
		_ = scope.WithSession(context.Background(), func(context.Context, Session) error {
			panic("handler bug")
		})
	})
	assert.Equal(t, []string{"rollback", "close"}, sess.calls)
}

func TestScope_AcquireFailure(t *testing.T) {
	rec := &outcomeLog{}
	scope := NewScope(&fakeSource{err: ErrPoolClosed}, zap.NewNop(), WithRecorder(rec))

	called := false
	err := scope.WithSession(context.Background(), func(context.Context, Session) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.False(t, called)
	assert.Equal(t, []string{OutcomeAcquireFailed}, rec.outcomes)
}

func TestWithin(t *testing.T) {
	sess := &fakeSession{}
	scope := NewScope(&fakeSource{sess: sess}, zap.NewNop())

	n, err := Within(context.Background(), scope, func(context.Context, Session) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	workErr := errors.New("nope")
	n, err = Within(context.Background(), scope, func(context.Context, Session) (int, error) {
		return 7, workErr
	})
	assert.Same(t, workErr, err)
	assert.Zero(t, n)
}

// 任意结果组合下：Close 恰好一次且最后执行，成功时 Commit 在 Close 之前，
// 失败时从不提交成功，调用方拿到的是原始错误。
func TestScope_FinalizeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		workFails := rapid.Bool().Draw(t, "workFails")
		commitFails := rapid.Bool().Draw(t, "commitFails")
		rollbackFails := rapid.Bool().Draw(t, "rollbackFails")
		closeFails := rapid.Bool().Draw(t, "closeFails")

		sess := &fakeSession{}
		if commitFails {
			sess.commitErr = errors.New("commit")
		}
		if rollbackFails {
			sess.rollbackErr = errors.New("rollback")
		}
		if closeFails {
			sess.closeErr = errors.New("close")
		}
		scope := NewScope(&fakeSource{sess: sess}, zap.NewNop())

		workErr := errors.New("work")
		err := scope.WithSession(context.Background(), func(context.Context, Session) error {
			if workFails {
				return workErr
			}
			return nil
		})

		if sess.count("close") != 1 {
			t.Fatalf("close called %d times: %v", sess.count("close"), sess.calls)
		}
		if sess.calls[len(sess.calls)-1] != "close" {
			t.Fatalf("close was not last: %v", sess.calls)
		}

		switch {
		case workFails:
			if err != workErr {
				t.Fatalf("want original work error, got %v", err)
			}
			if sess.count("commit") != 0 || sess.count("rollback") != 1 {
				t.Fatalf("unexpected calls on failure: %v", sess.calls)
			}
		case commitFails:
			if err != sess.commitErr {
				t.Fatalf("want commit error, got %v", err)
			}
			if sess.count("rollback") != 1 {
				t.Fatalf("commit failure did not roll back: %v", sess.calls)
			}
		default:
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if len(sess.calls) != 2 || sess.calls[0] != "commit" {
				t.Fatalf("want [commit close], got %v", sess.calls)
			}
		}
	})
}

// =============================================================================
// 🧪 真实事务
// =============================================================================

type scopeProbe struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestScope_RealTransactions(t *testing.T) {
	pool := newSQLitePool(t)
	require.NoError(t, pool.DB().AutoMigrate(&scopeProbe{}))

	scope := NewScope(pool, zap.NewNop())
	ctx := context.Background()

	err := scope.WithSession(ctx, func(ctx context.Context, s Session) error {
		return s.DB().Create(&scopeProbe{Name: "kept"}).Error
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = scope.WithSession(ctx, func(ctx context.Context, s Session) error {
		if err := s.DB().Create(&scopeProbe{Name: "discarded"}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.Same(t, boom, err)

	var names []string
	require.NoError(t, pool.DB().Model(&scopeProbe{}).Order("id").Pluck("name", &names).Error)
	assert.Equal(t, []string{"kept"}, names)

	// 所有连接都已归还
	assert.Equal(t, 0, pool.Stats().InUse)
}

func TestGormSession_StateMachine(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	pool, err := NewPool(gormDB, PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)

	t.Run("commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit()

		s, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		gs := s.(*gormSession)
		assert.Equal(t, SessionOpen, gs.State())

		require.NoError(t, s.Commit())
		assert.Equal(t, SessionCommitted, gs.State())
		assert.ErrorIs(t, s.Commit(), ErrSessionClosed)

		require.NoError(t, s.Close())
		assert.Equal(t, SessionClosed, gs.State())
		require.NoError(t, s.Close())
	})

	t.Run("close rolls back open session", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		s, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		require.NoError(t, s.Close())
		assert.Equal(t, SessionClosed, s.(*gormSession).State())
	})

	t.Run("commit failure then rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("could not serialize access"))

		s, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		require.Error(t, s.Commit())
		assert.Equal(t, SessionOpen, s.(*gormSession).State())

		// 事务已结束，回滚视为成功
		require.NoError(t, s.Rollback())
		assert.Equal(t, SessionRolledBack, s.(*gormSession).State())
		require.NoError(t, s.Close())
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "open", SessionOpen.String())
	assert.Equal(t, "committed", SessionCommitted.String())
	assert.Equal(t, "rolled_back", SessionRolledBack.String())
	assert.Equal(t, "closed", SessionClosed.String())
	assert.Equal(t, "SessionState(9)", SessionState(9).String())
}
