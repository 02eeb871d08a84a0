// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 提供 salesflow 数据库 Schema 的版本化迁移，支持
PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌进二进制，迁移器与服务共用
同一个连接串（DATABASE_URL）。服务启动时的建表走 database.Initialize，
本包面向运维：显式升级、回滚与修复 dirty 状态。

# 核心类型

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info/Close。
  - DefaultMigrator：封装 golang-migrate 实例与 *sql.DB。
  - CLI：把 Migrator 的结果格式化输出到终端，供 salesflow migrate 使用。
  - NewMigratorFromConfig：从 config.DatabaseConfig 创建迁移器。
*/
package migration
