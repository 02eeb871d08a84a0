// Package tlsutil 提供加固的 TLS 客户端配置（TLS 1.2+，仅 AEAD 密码套件），
// 供 health 等运维命令访问 HTTPS 部署的服务。
package tlsutil
