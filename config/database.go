package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/BaSui01/salesflow/internal/database"
)

// ConnectionURL 返回数据库连接串。
// 配置了 url 时直接使用，否则由 driver/host/port/user/password/name 拼接。
// 返回值包含凭据，只能交给连接池，写日志请用 database.RedactURL。
func (d DatabaseConfig) ConnectionURL() string {
	if u := strings.TrimSpace(d.URL); u != "" {
		return u
	}

	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		u := d.networkURL("postgres", 5432)
		if d.SSLMode != "" {
			u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
		}
		return u.String()
	case "mysql":
		u := d.networkURL("mysql", 3306)
		return u.String()
	case "sqlite", "sqlite3":
		if d.Name == "" {
			return ""
		}
		return "sqlite:" + d.Name
	default:
		return ""
	}
}

func (d DatabaseConfig) networkURL(scheme string, defaultPort int) *url.URL {
	port := d.Port
	if port == 0 {
		port = defaultPort
	}
	u := &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(port)),
		Path:   "/" + d.Name,
	}
	switch {
	case d.User != "" && d.Password != "":
		u.User = url.UserPassword(d.User, d.Password)
	case d.User != "":
		u.User = url.User(d.User)
	}
	return u
}

// RedactedURL 返回可写入日志的连接目标
func (d DatabaseConfig) RedactedURL() string {
	return database.RedactURL(d.ConnectionURL())
}

// PoolConfig 转换为连接池配置
func (d DatabaseConfig) PoolConfig() database.PoolConfig {
	return database.PoolConfig{
		MaxIdleConns:        d.MaxIdleConns,
		MaxOpenConns:        d.MaxOpenConns,
		ConnMaxLifetime:     d.ConnMaxLifetime,
		ConnMaxIdleTime:     d.ConnMaxIdleTime,
		HealthCheckInterval: d.HealthCheckInterval,
		Echo:                d.Echo,
	}
}

// RetryPolicy 转换为启动重试策略
func (i InitConfig) RetryPolicy() database.RetryPolicy {
	return database.RetryPolicy{
		MaxAttempts:       i.MaxAttempts,
		WaitInterval:      i.WaitInterval,
		RetryAuthFailures: i.RetryAuthFailures,
	}
}
