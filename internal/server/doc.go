// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理：非阻塞启动、优雅关闭与
异步错误传播。

# 核心类型

  - Manager：封装 net/http.Server 与 net.Listener。Start 返回时端口
    已经绑定；Shutdown 停止接收新连接并在超时内排空进行中的请求，
    可重复调用。
  - Config：监听地址、读写与空闲超时、最大请求头与关闭超时。

API 服务与 /metrics 服务各使用一个 Manager，由 app 包按顺序启动、
并发关闭。
*/
package server
