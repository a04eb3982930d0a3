// Package main Shongo 域控制器入口
//
// 子命令：
//   - serve   启动管理 API、域间协议与预约服务
//   - migrate 创建或升级数据库 Schema
//   - install 安装为 systemd 服务
//   - version 打印版本
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
