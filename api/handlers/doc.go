// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 SalesFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现健康检查、线索 CRUD 以及统一的响应/错误处理。
业务路由组只拿到 database.Scoper：每个请求在独立会话中执行，
成功提交，失败回滚，会话总会关闭。

# 核心类型

  - HealthHandler   ：存活与就绪检查（/health, /healthz, /ready, /readyz, /version）
  - LeadHandler     ：线索列表、创建、查询、部分更新与删除
  - Response        ：统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo       ：结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter  ：包装 http.ResponseWriter 以捕获状态码
  - HealthCheck     ：可插拔就绪检查接口

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteFailure
  - 请求解码：BindRequest（1 MB 限制 + render.Bind + validator 校验）
  - 存储层错误映射：未找到 → 404，唯一键冲突 → 409，连接池关闭 → 503
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
*/
package handlers
