// Package tui 把导航控制器与 API 网关客户端托管在一个 bubbletea 程序里。
//
// Update 在单一协程中执行，所有网络调用以 tea.Cmd 发出，结果作为消息回到
// 发起它的页面。每个页面给请求编号，新请求会取消旧请求，迟到的旧结果被丢弃。
package tui
