// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 SalesFlow 服务端程序入口。

# 概述

cmd/salesflow 是 SalesFlow 的可执行入口，提供 HTTP API 服务、
数据库迁移、健康检查和版本查询等子命令。配置来自 YAML 文件与
SALESFLOW_* 环境变量，日志使用 zap。

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - serve：加载并校验配置 → 初始化日志与 OpenTelemetry → internal/app 启动；
    SIGINT/SIGTERM 触发优雅关闭
  - 建表重试耗尽时进程以非零状态退出，从不对外提供服务
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
