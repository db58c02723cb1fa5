package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"finance-server-go/config"
	"finance-server-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", config.ResolvePath(), "配置文件路径（默认读取 CONFIG_PATH）")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	defer c.Close()

	// SIGINT/SIGTERM 与空闲关闭走同一条优雅退出路径
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil {
		c.Close()
		log.Fatalf("server exited: %v", err)
	}
}
