// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package app 负责把连接池、启动建表、路由组、跨域策略与 HTTP 服务器按固定顺序装配起来。

# 启动顺序

 1. 根据配置创建连接池（惰性，不建立连接）
 2. 同步执行建表，按 database.init 策略有界重试；失败即中止，端口从不监听
 3. 注册路由组，每组只拿到 database.Scoper
 4. 套上中间件链与跨域策略
 5. 启动 API 服务器与（可选的）指标服务器

# 停止顺序

Stop 并发关闭各服务器，等待进行中的请求完成后才释放连接池。

# 跨域

CORSPolicy 保证通配来源与凭据不会同时出现：允许任意来源时返回 *
且不允许凭据；只有显式来源列表才回显来源并允许凭据。
*/
package app
