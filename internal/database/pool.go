package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ErrPoolClosed 连接池已释放，不能再获取会话
var ErrPoolClosed = errors.New("database pool is closed")

// =============================================================================
// 🗄️ 数据库连接池
// =============================================================================

// Pool 进程级数据库连接池。
// 启动时创建一次，通过引用注入给需要它的组件；Close 之后不能再获取会话。
type Pool struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	target string
	config PoolConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// PoolConfig 连接池配置
type PoolConfig struct {
	// 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`

	// 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`

	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`

	// 连接最大空闲时间
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	// 输出每条 SQL（调试用）
	Echo bool `yaml:"echo" json:"echo"`
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        5,
		MaxOpenConns:        25,
		ConnMaxLifetime:     30 * time.Minute,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Validate 校验连接池配置
func (c PoolConfig) Validate() error {
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be positive")
	}
	if c.MaxIdleConns <= 0 {
		return fmt.Errorf("max_idle_conns must be positive")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns (%d) cannot exceed max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// Open 根据连接串创建连接池。
// 只校验连接串格式，不建立连接；目标不可达时错误在首次真正使用连接时才出现。
func Open(rawURL string, config PoolConfig, logger *zap.Logger) (*Pool, error) {
	target, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch target.Driver() {
	case DriverPostgres:
		dialector = postgres.Open(target.DSN())
	case DriverMySQL:
		dialector = mysql.New(mysql.Config{
			DSN:                       target.DSN(),
			SkipInitializeWithVersion: true,
		})
	case DriverSQLite:
		dialector = sqlite.Open(target.DSN())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, target.Driver())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableAutomaticPing: true,
		TranslateError:       true,
		Logger:               newGormLogger(logger, config.Echo),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target.Redacted(), err)
	}

	return newPool(db, target.Redacted(), config, logger)
}

// NewPool 基于已有的 GORM 实例创建连接池（测试或自定义方言时使用）
func NewPool(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*Pool, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	return newPool(db, db.Dialector.Name(), config, logger)
}

func newPool(db *gorm.DB, target string, config PoolConfig, logger *zap.Logger) (*Pool, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	p := &Pool{
		db:     db,
		sqlDB:  sqlDB,
		target: target,
		config: config,
		logger: logger.With(zap.String("component", "db_pool"), zap.String("target", target)),
		done:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go p.healthCheckLoop()
	}

	p.logger.Info("database pool created",
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Duration("conn_max_lifetime", config.ConnMaxLifetime),
		zap.Bool("echo", config.Echo),
	)

	return p, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// DB 返回 GORM 实例
func (p *Pool) DB() *gorm.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

// SQLDB 返回底层 *sql.DB，用于指标采集
func (p *Pool) SQLDB() *sql.DB {
	return p.sqlDB
}

// Target 返回脱敏后的连接目标
func (p *Pool) Target() string {
	return p.target
}

// Acquire 从连接池获取一个会话，并在其上开启事务。
// 会话只属于调用方这一个工作单元，用完必须 Close。
func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	db := p.db
	p.mu.RUnlock()

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin transaction: %w", tx.Error)
	}
	return newGormSession(tx), nil
}

// Ping 检查数据库连接
func (p *Pool) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	return p.sqlDB.PingContext(ctx)
}

// Stats 返回连接池统计信息
func (p *Pool) Stats() sql.DBStats {
	return p.sqlDB.Stats()
}

// Closed 返回连接池是否已释放
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Close 释放连接池中的所有连接，可重复调用
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.done)
	p.logger.Info("closing database pool")

	return p.sqlDB.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (p *Pool) healthCheckLoop() {
	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.Ping(ctx); err != nil {
			if !errors.Is(err, ErrPoolClosed) {
				p.logger.Warn("database health check failed", zap.Error(err))
			}
		} else {
			stats := p.Stats()
			p.logger.Debug("database health check passed",
				zap.Int("open_connections", stats.OpenConnections),
				zap.Int("in_use", stats.InUse),
				zap.Int("idle", stats.Idle),
			)
		}
		cancel()
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// PoolStats 连接池统计信息（更友好的格式）
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// GetStats 获取友好格式的统计信息
func (p *Pool) GetStats() PoolStats {
	stats := p.Stats()
	return PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}
}
