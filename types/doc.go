// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 salesflow 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包。

  - Error / ErrorCode：结构化错误，携带 HTTP 状态码与 Retryable 标记
  - WithRequestID / RequestID、WithTraceID / TraceID：Context 传播
*/
package types
