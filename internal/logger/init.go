package logger

import "log"

// InitLogger 初始化全局日志器。微秒时间戳便于对齐亚秒级的tick日志。
func InitLogger() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Printf("🧘 会话引擎日志已初始化")
}
