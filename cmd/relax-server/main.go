package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"GoRelaxSessionEngine/internal/archive"
	"GoRelaxSessionEngine/internal/audio"
	"GoRelaxSessionEngine/internal/config"
	"GoRelaxSessionEngine/internal/engine"
	"GoRelaxSessionEngine/internal/httpserver"
	"GoRelaxSessionEngine/internal/logger"
	"GoRelaxSessionEngine/internal/snapshot"
)

func main() {
	logger.InitLogger()

	// 1. 加载配置
	manager := config.NewManager(config.WithWatchEnabled(true))
	cfg, err := manager.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 快照存储
	store, err := snapshot.NewStore(cfg.Snapshot.Dir)
	if err != nil {
		log.Fatalf("创建快照存储失败: %v", err)
	}

	// 3. 归档服务：启用时走PostgreSQL，否则用内存归档
	var archiver archive.Archiver
	if cfg.Archive.Enabled {
		pgxArchive, err := archive.ConnectPgx(context.Background(), &archive.PgxConfig{
			Host:     cfg.Archive.Host,
			Port:     cfg.Archive.Port,
			User:     cfg.Archive.User,
			Password: cfg.Archive.Password,
			DBName:   cfg.Archive.DBName,
			SSLMode:  cfg.Archive.SSLMode,
		})
		if err != nil {
			log.Fatalf("连接归档数据库失败: %v", err)
		}
		defer pgxArchive.Close()
		archiver = pgxArchive
	} else {
		log.Println("归档未启用，使用内存归档")
		archiver = archive.NewMemoryArchive()
	}

	// 4. 音频引擎：初始化失败进入静默降级模式，不阻止启动
	sound := audio.NewEngine(&audio.LogPlayer{}, audio.NopDevice{}, &audio.Config{
		InitTimeout:     cfg.Audio.InitTimeout,
		InitMaxInterval: cfg.Audio.InitMaxInterval,
	})
	if err := sound.Init(context.Background()); err != nil {
		log.Printf("⚠️ 音频引擎初始化失败（会话将静默进行）: %v", err)
	}
	defer sound.Stop()

	// 5. 会话引擎
	eng, err := engine.New(cfg, store, archiver, sound)
	if err != nil {
		log.Fatalf("创建会话引擎失败: %v", err)
	}

	// 6. 表现层API服务器（持有驱动tick循环）
	broadcaster := logger.NewStateBroadcaster()
	server := httpserver.NewAPIServer(cfg, eng, broadcaster)
	if err := server.Start(); err != nil {
		log.Fatalf("启动API服务器失败: %v", err)
	}

	// 等待退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("收到信号 %v，开始优雅关闭...", sig)

	// 退出前强制暂停并落一次快照，进行中的会话重启后可恢复
	eng.NotifyBackground(time.Now())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务器关闭失败: %v", err)
	}

	log.Println("✅ 已退出")
}
