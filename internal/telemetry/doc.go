// Package telemetry 安装 salesflow 的 OpenTelemetry provider，并提供会话 scope
// 与 HTTP 中间件共用的 tracer（SessionTracer、HTTPTracer）。
// 禁用时保持 noop，不连接任何 collector；启用时 OTLP gRPC 导出可选 TLS。
package telemetry
