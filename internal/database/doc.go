// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供进程级数据库连接池、作用域会话与启动期的有界重试初始化。

# 概述

Pool 在启动时由连接串创建一次，之后以引用方式注入给需要它的组件，
不存在全局实例。创建时只校验连接串格式，不做网络 I/O；目标不可达的
错误在第一次真正使用连接时才出现。

Initialize 在 RetryPolicy 约束下执行幂等的建表函数：固定间隔、次数上限，
每次等待前记录一条 info 日志，耗尽后返回 *FatalInitError。

Scope 为每个工作单元提供一个独占会话：成功提交、失败回滚、始终关闭。
路由层只拿到 Scoper 接口，不会直接接触 Pool。

# 核心类型

  - Pool：连接池，提供 Acquire、Ping、Stats、Close。
  - Target：解析后的连接目标，Redacted 返回不含凭据的描述。
  - RetryPolicy：最大尝试次数、固定等待、是否重试认证失败。
  - Session / Scope：事务会话与其作用域。
  - FatalInitError：启动失败，包含尝试次数与脱敏后的目标。

# 日志

任何包含连接目标的日志字段都使用 Target.Redacted 或 RedactURL 的输出，
用户名、密码与查询参数不会出现在日志中。
*/
package database
