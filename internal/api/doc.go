// Package api 提供本地开发用的 HealthForce 模拟后端。
//
// 路由与前端网关客户端的约定一致：所有业务接口位于 /api 下，错误响应统一为
// {"detail": "..."}。浪涌分析通过 internal/surge 排队执行，其余接口返回演示数据。
package api
