package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite" // sqlite 驱动（纯 Go）
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/BaSui01/salesflow/internal/database"
)

// =============================================================================
// 📦 内嵌迁移文件
// =============================================================================

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// =============================================================================
// 🎯 类型
// =============================================================================

// MigrationStatus 单个迁移的状态
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// MigrationInfo 当前迁移状态摘要
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Config 迁移器配置
type Config struct {
	// DatabaseURL 与服务共用的连接串（postgres://、mysql://、sqlite://）
	DatabaseURL string

	// TableName 版本表名，默认 schema_migrations
	TableName string

	// LockTimeout 获取迁移锁的超时
	LockTimeout time.Duration

	// Logger 可选，输出 golang-migrate 的执行日志
	Logger *zap.Logger
}

// Migrator 迁移器接口
type Migrator interface {
	// Up 执行全部待执行迁移
	Up(ctx context.Context) error

	// Down 回滚最近一次迁移
	Down(ctx context.Context) error

	// DownAll 回滚全部迁移
	DownAll(ctx context.Context) error

	// Steps 正数前进 n 步，负数回滚 n 步
	Steps(ctx context.Context, n int) error

	Goto(ctx context.Context, version uint) error

	// Force 只写版本号，不执行迁移（用于修复 dirty 状态）
	Force(ctx context.Context, version int) error

	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]MigrationStatus, error)
	Info(ctx context.Context) (*MigrationInfo, error)
	Close() error
}

// =============================================================================
// 🔧 默认实现
// =============================================================================

// DefaultMigrator 基于 golang-migrate 的迁移器
type DefaultMigrator struct {
	config  *Config
	target  *database.Target
	migrate *migrate.Migrate
	db      *sql.DB
}

// NewMigrator 创建迁移器。与服务启动不同，迁移需要立即连上数据库
func NewMigrator(ctx context.Context, cfg *Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 15 * time.Second
	}

	target, err := database.ParseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	m := &DefaultMigrator{
		config: cfg,
		target: target,
	}
	if err := m.init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrator for %s: %w", target.Redacted(), err)
	}
	return m, nil
}

func (m *DefaultMigrator) init(ctx context.Context) error {
	var err error

	m.db, err = m.openDatabase(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	dbDriver, err := m.createDatabaseDriver()
	if err != nil {
		_ = m.db.Close()
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	sourceDriver, err := m.createSourceDriver()
	if err != nil {
		_ = m.db.Close()
		return fmt.Errorf("failed to create source driver: %w", err)
	}

	m.migrate, err = migrate.NewWithInstance("iofs", sourceDriver, m.target.Driver(), dbDriver)
	if err != nil {
		_ = m.db.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.migrate.LockTimeout = m.config.LockTimeout
	if m.config.Logger != nil {
		m.migrate.Log = newMigrateLogger(m.config.Logger)
	}

	return nil
}

// openDatabase 按驱动打开 *sql.DB 并探活
func (m *DefaultMigrator) openDatabase(ctx context.Context) (*sql.DB, error) {
	var driverName, dsn string

	switch m.target.Driver() {
	case database.DriverPostgres:
		driverName, dsn = "postgres", m.target.DSN()
	case database.DriverMySQL:
		driverName, dsn = "mysql", m.target.MySQLDSN(map[string]string{"multiStatements": "true"})
	case database.DriverSQLite:
		driverName, dsn = "sqlite", m.target.DSN()
	default:
		return nil, fmt.Errorf("%w: %s", database.ErrUnsupportedScheme, m.target.Driver())
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func (m *DefaultMigrator) createDatabaseDriver() (migratedb.Driver, error) {
	switch m.target.Driver() {
	case database.DriverPostgres:
		return postgres.WithInstance(m.db, &postgres.Config{
			MigrationsTable: m.config.TableName,
		})
	case database.DriverMySQL:
		return mysql.WithInstance(m.db, &mysql.Config{
			MigrationsTable: m.config.TableName,
		})
	case database.DriverSQLite:
		return sqlite3.WithInstance(m.db, &sqlite3.Config{
			MigrationsTable: m.config.TableName,
		})
	default:
		return nil, fmt.Errorf("%w: %s", database.ErrUnsupportedScheme, m.target.Driver())
	}
}

func (m *DefaultMigrator) createSourceDriver() (source.Driver, error) {
	fsys, path, err := migrationsFS(m.target.Driver())
	if err != nil {
		return nil, err
	}
	return iofs.New(fsys, path)
}

// migrationsFS 返回驱动对应的内嵌目录
func migrationsFS(driver string) (fs.FS, string, error) {
	switch driver {
	case database.DriverPostgres:
		return postgresFS, "migrations/postgres", nil
	case database.DriverMySQL:
		return mysqlFS, "migrations/mysql", nil
	case database.DriverSQLite:
		return sqliteFS, "migrations/sqlite", nil
	default:
		return nil, "", fmt.Errorf("%w: %s", database.ErrUnsupportedScheme, driver)
	}
}

// run 执行 fn；ctx 结束时请求 golang-migrate 在当前迁移完成后停止
func (m *DefaultMigrator) run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case m.migrate.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Up 执行全部待执行迁移
func (m *DefaultMigrator) Up(ctx context.Context) error {
	if err := m.run(ctx, m.migrate.Up); err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down 回滚最近一次迁移
func (m *DefaultMigrator) Down(ctx context.Context) error {
	if err := m.run(ctx, func() error { return m.migrate.Steps(-1) }); err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// DownAll 回滚全部迁移
func (m *DefaultMigrator) DownAll(ctx context.Context) error {
	if err := m.run(ctx, m.migrate.Down); err != nil {
		return fmt.Errorf("migration down all failed: %w", err)
	}
	return nil
}

func (m *DefaultMigrator) Steps(ctx context.Context, n int) error {
	if err := m.run(ctx, func() error { return m.migrate.Steps(n) }); err != nil {
		return fmt.Errorf("migration steps failed: %w", err)
	}
	return nil
}

func (m *DefaultMigrator) Goto(ctx context.Context, version uint) error {
	if err := m.run(ctx, func() error { return m.migrate.Migrate(version) }); err != nil {
		return fmt.Errorf("migration goto failed: %w", err)
	}
	return nil
}

func (m *DefaultMigrator) Force(ctx context.Context, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

// Version 返回当前版本；尚未迁移时返回 0
func (m *DefaultMigrator) Version(ctx context.Context) (uint, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status 返回全部迁移的状态
func (m *DefaultMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	currentVersion, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	migrations, err := availableMigrations(m.target.Driver())
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.version,
			Name:    mig.name,
			Applied: mig.version <= currentVersion,
			Dirty:   dirty && mig.version == currentVersion,
		})
	}
	return statuses, nil
}

// Info 返回迁移摘要
func (m *DefaultMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	currentVersion, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	migrations, err := availableMigrations(m.target.Driver())
	if err != nil {
		return nil, err
	}

	applied := 0
	for _, mig := range migrations {
		if mig.version <= currentVersion {
			applied++
		}
	}

	return &MigrationInfo{
		CurrentVersion:    currentVersion,
		Dirty:             dirty,
		TotalMigrations:   len(migrations),
		AppliedMigrations: applied,
		PendingMigrations: len(migrations) - applied,
	}, nil
}

// Close 释放迁移器持有的连接
func (m *DefaultMigrator) Close() error {
	if m.migrate == nil {
		return nil
	}
	sourceErr, dbErr := m.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}

// =============================================================================
// 📄 迁移文件
// =============================================================================

type migrationFile struct {
	version uint
	name    string
}

// availableMigrations 列出内嵌的迁移文件，按版本升序
func availableMigrations(driver string) ([]migrationFile, error) {
	fsys, path, err := migrationsFS(driver)
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	seen := make(map[uint]bool)
	var migrations []migrationFile

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		// 000001_init_schema.up.sql
		versionPart, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(versionPart, 10, 32)
		if err != nil || seen[uint(version)] {
			continue
		}
		seen[uint(version)] = true

		migrations = append(migrations, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(rest, ".up.sql"),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

// =============================================================================
// 📝 日志适配
// =============================================================================

// migrateLogger 把 golang-migrate 的 Printf 日志转到 zap
type migrateLogger struct {
	sugar   *zap.SugaredLogger
	verbose bool
}

func newMigrateLogger(logger *zap.Logger) *migrateLogger {
	return &migrateLogger{
		sugar:   logger.With(zap.String("component", "migration")).Sugar(),
		verbose: logger.Core().Enabled(zap.DebugLevel),
	}
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.sugar.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l *migrateLogger) Verbose() bool {
	return l.verbose
}
