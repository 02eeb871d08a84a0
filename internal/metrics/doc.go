// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP 请求、
数据库启动初始化、会话结果与连接池状态。

# 核心类型

  - Collector：持有独立的 prometheus.Registry（附带 Go 运行时与
    进程指标），Handler 返回对应的 /metrics 处理器。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为
    2xx/3xx/4xx/5xx。
  - 启动初始化：按 success/failure 统计建表尝试次数。
  - 会话：按 committed/rolled_back/commit_failed/acquire_failed 统计
    数量与耗时，Collector 本身实现 database.OutcomeRecorder。
  - 连接池：open/idle/in_use/wait_count Gauge。
*/
package metrics
