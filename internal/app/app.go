package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/salesflow/api/handlers"
	"github.com/BaSui01/salesflow/config"
	"github.com/BaSui01/salesflow/internal/database"
	"github.com/BaSui01/salesflow/internal/metrics"
	"github.com/BaSui01/salesflow/internal/models"
	"github.com/BaSui01/salesflow/internal/server"
	"github.com/BaSui01/salesflow/internal/telemetry"
)

// =============================================================================
// 🧩 应用装配
// =============================================================================

// ConnectionPool App 依赖的连接池能力，通常是 *database.Pool
type ConnectionPool interface {
	database.SessionSource
	database.SchemaTarget
	Ping(ctx context.Context) error
	Stats() sql.DBStats
	Close() error
}

// PoolOpener 根据配置创建连接池，不应建立网络连接
type PoolOpener func(cfg config.DatabaseConfig, logger *zap.Logger) (ConnectionPool, error)

// OpenPool 默认的 PoolOpener
func OpenPool(cfg config.DatabaseConfig, logger *zap.Logger) (ConnectionPool, error) {
	pool, err := database.Open(cfg.ConnectionURL(), cfg.PoolConfig(), logger)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// RouteGroup 一组挂载在同一前缀下的路由。
// Register 只拿到会话能力，不接触连接池本身。
type RouteGroup struct {
	Name     string
	Prefix   string
	Register func(r chi.Router, scoper database.Scoper)
}

// State App 生命周期状态
type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// statsInterval 连接池指标采集间隔
const statsInterval = 15 * time.Second

// healthPaths 免认证路径
var healthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

// Option 配置 App
type Option func(*App)

// WithRouteGroups 追加路由组
func WithRouteGroups(groups ...RouteGroup) Option {
	return func(a *App) {
		a.groups = append(a.groups, groups...)
	}
}

// WithSchemaSetup 替换建表函数，默认 models.AutoMigrate
func WithSchemaSetup(setup database.SchemaSetupFunc) Option {
	return func(a *App) {
		if setup != nil {
			a.schemaSetup = setup
		}
	}
}

// WithPoolOpener 替换连接池构造（测试注入假连接池）
func WithPoolOpener(open PoolOpener) Option {
	return func(a *App) {
		if open != nil {
			a.openPool = open
		}
	}
}

// WithVersion 设置 /version 返回的信息
func WithVersion(info handlers.VersionInfo) Option {
	return func(a *App) {
		a.version = info
	}
}

// WithCollector 使用外部指标收集器
func WithCollector(c *metrics.Collector) Option {
	return func(a *App) {
		if c != nil {
			a.collector = c
		}
	}
}

// App 按固定顺序启动：连接池 → 建表（带重试）→ 路由组 → 跨域策略 → 接收流量。
// 停止时先停止接收并等待进行中的请求，最后释放连接池。
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	groups      []RouteGroup
	schemaSetup database.SchemaSetupFunc
	openPool    PoolOpener
	version     handlers.VersionInfo
	collector   *metrics.Collector

	// lifecycle 串行化 Start/Stop
	lifecycle sync.Mutex

	mu             sync.RWMutex
	state          State
	pool           ConnectionPool
	httpManager    *server.Manager
	metricsManager *server.Manager
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

// New 创建 App，不做任何 I/O
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "app")),
		schemaSetup: models.AutoMigrate,
		openPool:    OpenPool,
		version:     handlers.VersionInfo{Version: "dev"},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.collector == nil {
		a.collector = metrics.NewCollector("salesflow", logger)
	}
	return a
}

// State 当前状态
func (a *App) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *App) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Addr API 服务器实际监听地址，未启动时为空
func (a *App) Addr() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.httpManager == nil {
		return ""
	}
	return a.httpManager.Addr()
}

// MetricsAddr 指标服务器实际监听地址，未启用时为空
func (a *App) MetricsAddr() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.metricsManager == nil {
		return ""
	}
	return a.metricsManager.Addr()
}

// Collector 返回指标收集器
func (a *App) Collector() *metrics.Collector {
	return a.collector
}

// =============================================================================
// 🚀 启动
// =============================================================================

// Start 执行启动流程。建表在重试耗尽后返回 *database.FatalInitError，
// 此时连接池已释放，端口从未监听。
func (a *App) Start(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if s := a.State(); s != StateNew {
		return fmt.Errorf("app cannot start from state %s", s)
	}
	a.setState(StateStarting)

	a.logger.Info("starting API",
		zap.String("version", a.version.Version),
		zap.String("database", a.cfg.Database.RedactedURL()),
		zap.Int("route_groups", len(a.groups)),
	)

	if err := validateGroups(a.groups); err != nil {
		a.setState(StateFailed)
		return err
	}

	// 1. 连接池（惰性，不建立连接）
	pool, err := a.openPool(a.cfg.Database, a.logger)
	if err != nil {
		a.setState(StateFailed)
		a.logger.Error("failed to create database pool", zap.Error(err))
		return fmt.Errorf("create database pool: %w", err)
	}

	// 2. 建表，同步执行
	err = database.Initialize(ctx, pool, a.schemaSetup, a.cfg.Database.Init.RetryPolicy(), a.logger,
		database.WithAttemptObserver(func(at database.Attempt) {
			a.collector.RecordInitAttempt(at.Err)
		}),
	)
	if err != nil {
		a.abort(pool)
		return err
	}

	bgCtx, cancel := context.WithCancel(context.Background())

	// 3 + 4. 路由组与跨域策略
	handler := a.buildHandler(bgCtx, pool)

	// 5. 接收流量
	httpManager := server.NewManager("api", handler, server.Config{
		Addr:            fmt.Sprintf(":%d", a.cfg.Server.HTTPPort),
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		IdleTimeout:     a.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, a.logger)
	if err := httpManager.Start(); err != nil {
		cancel()
		a.abort(pool)
		return fmt.Errorf("start API server: %w", err)
	}

	var metricsManager *server.Manager
	if a.cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.collector.Handler())
		metricsManager = server.NewManager("metrics", mux, server.Config{
			Addr:            fmt.Sprintf(":%d", a.cfg.Server.MetricsPort),
			ReadTimeout:     a.cfg.Server.ReadTimeout,
			WriteTimeout:    a.cfg.Server.WriteTimeout,
			ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		}, a.logger)
		if err := metricsManager.Start(); err != nil {
			cancel()
			_ = httpManager.Shutdown(context.Background())
			a.abort(pool)
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	a.mu.Lock()
	a.pool = pool
	a.httpManager = httpManager
	a.metricsManager = metricsManager
	a.cancel = cancel
	a.state = StateRunning
	a.mu.Unlock()

	a.wg.Add(1)
	go a.statsLoop(bgCtx, pool)

	a.logger.Info("API-only mode: background workers run in a separate process")
	a.logger.Info("API started",
		zap.String("addr", httpManager.Addr()),
		zap.String("metrics_addr", a.MetricsAddr()),
	)
	return nil
}

// abort 启动失败：释放连接池，进入 Failed
func (a *App) abort(pool ConnectionPool) {
	if err := pool.Close(); err != nil {
		a.logger.Warn("failed to close database pool", zap.Error(err))
	}
	a.setState(StateFailed)
}

func validateGroups(groups []RouteGroup) error {
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if g.Name == "" {
			return errors.New("route group name is empty")
		}
		if g.Register == nil {
			return fmt.Errorf("route group %q has no Register func", g.Name)
		}
		if g.Prefix != "" && !strings.HasPrefix(g.Prefix, "/") {
			return fmt.Errorf("route group %q prefix %q must start with /", g.Name, g.Prefix)
		}
		if _, dup := seen[g.Name]; dup {
			return fmt.Errorf("duplicate route group %q", g.Name)
		}
		seen[g.Name] = struct{}{}
	}
	return nil
}

// buildHandler 注册路由组并套上中间件链
func (a *App) buildHandler(ctx context.Context, pool ConnectionPool) http.Handler {
	scope := database.NewScope(pool, a.logger,
		database.WithRecorder(a.collector),
		database.WithTracer(telemetry.SessionTracer()),
	)

	r := chi.NewRouter()

	health := handlers.NewHealthHandler(a.logger)
	health.RegisterCheck(handlers.NewDatabaseHealthCheck("database", pool.Ping))
	health.Routes(r, a.version)
	if a.cfg.Server.MetricsPort == 0 {
		r.Method(http.MethodGet, "/metrics", a.collector.Handler())
	}

	for _, g := range a.groups {
		if g.Prefix == "" || g.Prefix == "/" {
			r.Group(func(r chi.Router) { g.Register(r, scope) })
		} else {
			r.Route(g.Prefix, func(r chi.Router) { g.Register(r, scope) })
		}
		a.logger.Info("route group registered", zap.String("group", g.Name), zap.String("prefix", g.Prefix))
	}

	cors := NewCORSPolicy(a.cfg.CORS)
	a.logger.Info("cors policy applied",
		zap.Bool("allow_all_origins", cors.AllowAllOrigins()),
		zap.Bool("allow_credentials", cors.AllowCredentials()),
	)

	var limiter, auth Middleware
	if a.cfg.Server.RateLimitRPS > 0 {
		limiter = RateLimiter(ctx, a.cfg.Server.RateLimitRPS, a.cfg.Server.RateLimitBurst, a.logger)
	}
	if len(a.cfg.Server.APIKeys) > 0 {
		auth = APIKeyAuth(a.cfg.Server.APIKeys, healthPaths, a.logger)
	}

	return Chain(r,
		Recovery(a.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(a.logger),
		OTelTracing(),
		MetricsMiddleware(a.collector),
		cors.Middleware(),
		limiter,
		auth,
	)
}

func (a *App) statsLoop(ctx context.Context, pool ConnectionPool) {
	defer a.wg.Done()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		a.collector.RecordDBStats("primary", pool.Stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// =============================================================================
// 🛑 停止
// =============================================================================

// Stop 停止接收新请求，等待进行中的请求完成，然后释放连接池。可重复调用。
func (a *App) Stop(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	switch a.State() {
	case StateRunning:
	case StateNew:
		a.setState(StateStopped)
		return nil
	default:
		return nil
	}
	a.setState(StateStopping)
	a.logger.Info("shutting down")

	a.mu.RLock()
	managers := []*server.Manager{a.httpManager, a.metricsManager}
	pool := a.pool
	cancel := a.cancel
	a.mu.RUnlock()

	var g errgroup.Group
	for _, m := range managers {
		if m == nil {
			continue
		}
		g.Go(func() error {
			if err := m.Shutdown(ctx); err != nil {
				return fmt.Errorf("%s server: %w", m.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	cancel()
	a.wg.Wait()

	// 请求全部结束后才释放连接池
	if cerr := pool.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("close database pool: %w", cerr))
	}

	a.setState(StateStopped)
	if err != nil {
		a.logger.Error("shutdown finished with errors", zap.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Run 启动后阻塞到 ctx 结束或服务器故障，然后按 shutdownTimeout 停止
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	a.mu.RLock()
	apiErrs := a.httpManager.Errors()
	var metricsErrs <-chan error
	if a.metricsManager != nil {
		metricsErrs = a.metricsManager.Errors()
	}
	a.mu.RUnlock()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-apiErrs:
		runErr = fmt.Errorf("api server: %w", err)
	case err := <-metricsErrs:
		runErr = fmt.Errorf("metrics server: %w", err)
	}
	if runErr != nil {
		a.logger.Error("server failed", zap.Error(runErr))
	}

	stopCtx := context.Background()
	if t := a.cfg.Server.ShutdownTimeout; t > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(stopCtx, t+5*time.Second)
		defer cancel()
	}
	return multierr.Append(runErr, a.Stop(stopCtx))
}
