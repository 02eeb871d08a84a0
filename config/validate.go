package config

import (
	"fmt"
	"strings"

	"github.com/BaSui01/salesflow/internal/database"
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 服务器
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, "metrics port must differ from HTTP port")
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, "rate limit must not be negative")
	}

	// 跨域：只接受完整来源或单独的 *
	for _, origin := range c.CORS.AllowedOrigins {
		if origin != "*" && strings.Contains(origin, "*") {
			errs = append(errs, fmt.Sprintf("cors origin %q: partial wildcards are not supported", origin))
		}
	}

	// 数据库
	if raw := c.Database.ConnectionURL(); raw == "" {
		errs = append(errs, "database url is empty")
	} else if _, err := database.ParseURL(raw); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Database.PoolConfig().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Database.Init.RetryPolicy().Validate(); err != nil {
		errs = append(errs, "database.init: "+err.Error())
	}

	// 日志
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("invalid log format %q", c.Log.Format))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
