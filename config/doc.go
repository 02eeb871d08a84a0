// Package config 提供 salesflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（SALESFLOW_ 前缀）的顺序加载，
// 未配置连接串时回退到 DATABASE_URL。DatabaseConfig 可转换为连接池配置
// 与启动重试策略。
package config
