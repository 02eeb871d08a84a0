package migration

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/BaSui01/salesflow/config"
)

// NewMigratorFromConfig 使用服务配置中的数据库连接创建迁移器
func NewMigratorFromConfig(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	url := cfg.ConnectionURL()
	if url == "" {
		return nil, errors.New("database URL is required")
	}
	return NewMigrator(ctx, &Config{
		DatabaseURL: url,
		Logger:      logger,
	})
}
