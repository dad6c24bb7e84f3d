package config

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
)

// StartServer 监听端口并阻塞到收到SIGINT或SIGTERM
// 关闭顺序：先stopStreams结束推送长连接（可以为nil），再关闭Fiber，最后依次执行cleanup
// 推送连接不会自行结束，先停推送才能让Shutdown返回
func StartServer(app *fiber.App, port string, stopStreams func(), cleanup ...func()) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Fatalf("看板服务启动失败: %v", err)
		}
	}()
	log.Printf("看板服务已启动，端口 %s", port)

	sig := <-stop
	log.Printf("收到信号 %v，准备关闭", sig)

	if stopStreams != nil {
		stopStreams()
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("关闭HTTP服务失败: %v", err)
	}
	for _, fn := range cleanup {
		fn()
	}
	log.Println("看板服务已退出")
}
