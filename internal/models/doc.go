// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 models 定义销售外联领域的 GORM 模型：线索、调研、草稿、模板、
已发送邮件与服务商回调事件。

AutoMigrate 是默认的启动建表函数，只创建缺失的表与索引，
可以在每次启动时安全执行；生产环境建议使用 internal/migration
中的版本化 SQL 迁移。
*/
package models
