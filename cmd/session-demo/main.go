package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"GoRelaxSessionEngine/internal/archive"
	"GoRelaxSessionEngine/internal/audio"
	"GoRelaxSessionEngine/internal/config"
	"GoRelaxSessionEngine/internal/cue"
	"GoRelaxSessionEngine/internal/engine"
	"GoRelaxSessionEngine/internal/snapshot"
	"GoRelaxSessionEngine/internal/timeline"
)

func main() {
	fmt.Println("🧘 放松会话引擎演示")
	fmt.Println("==================================")
	fmt.Println()

	cfg := config.Default()
	cfg.Engine.DebounceWindow = 0 // 演示中的快速操作不防抖

	dir, err := os.MkdirTemp("", "relax-demo-*")
	if err != nil {
		log.Fatalf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(dir)

	store, err := snapshot.NewStore(dir)
	if err != nil {
		log.Fatalf("创建快照存储失败: %v", err)
	}

	memArchive := archive.NewMemoryArchive()

	sound := audio.NewEngine(&audio.LogPlayer{PlayDuration: 50 * time.Millisecond}, audio.NopDevice{}, nil)
	if err := sound.Init(context.Background()); err != nil {
		log.Printf("音频初始化失败: %v", err)
	}
	defer sound.Stop()

	eng, err := engine.New(cfg, store, memArchive, sound)
	if err != nil {
		log.Fatalf("创建引擎失败: %v", err)
	}

	// 1. 呼吸会话：启动、tick、暂停、恢复
	fmt.Println("🚀 启动呼吸会话 (模拟时间推进)...")

	start := time.Now()
	cues := []*cue.Cue{
		{Offset: 2 * time.Second, AssetRef: "chime_soft.m4a"},
		{Offset: 5 * time.Second, AssetRef: "chime_deep.m4a"},
	}

	if _, err := eng.StartBreathing(start, 10*time.Second, cues); err != nil {
		log.Fatalf("启动呼吸会话失败: %v", err)
	}

	// 用合成时间戳快速驱动tick，展示阶段推进与提示音触发
	for i := 0; i <= 6; i++ {
		now := start.Add(time.Duration(i) * time.Second)
		state := eng.Tick(now)
		fmt.Printf("   ⏲️ t=%ds 阶段=%s 剩余=%v\n", i, state.Phase, state.Remaining.Round(time.Second))
		time.Sleep(100 * time.Millisecond) // 留给播放协程完成
	}

	fmt.Println("\n⏸️ 暂停 3 秒（已进行时长应冻结）...")
	pauseAt := start.Add(6 * time.Second)
	if err := eng.Pause(pauseAt); err != nil {
		log.Fatalf("暂停失败: %v", err)
	}

	frozen := eng.Display(pauseAt.Add(3 * time.Second))
	fmt.Printf("   暂停期间读数: 已进行=%v (不含暂停时长)\n", frozen.Elapsed.Round(time.Second))

	resumeAt := pauseAt.Add(3 * time.Second)
	if err := eng.Resume(resumeAt); err != nil {
		log.Fatalf("恢复失败: %v", err)
	}
	fmt.Printf("▶️ 已恢复，累计暂停时长已计入\n")

	// 推进到自然完结
	for i := 7; i <= 11; i++ {
		now := resumeAt.Add(time.Duration(i-6) * time.Second)
		eng.Tick(now)
	}
	time.Sleep(200 * time.Millisecond)

	results := memArchive.Results()
	fmt.Printf("\n🏁 呼吸会话结果: %d 条归档记录\n", len(results))
	for _, r := range results {
		fmt.Printf("   完整=%v 计划=%v 实际=%v\n", r.CompletedFully, r.PlannedDuration, r.ActualDuration)
	}

	// 2. 引导会话：时间线装配与顺序播放
	fmt.Println("\n📜 启动引导会话...")

	gStart := time.Now()
	program := &engine.GuidedProgram{
		ScriptID: "evening_winddown_v2",
		Segments: []timeline.Segment{
			{AssetRef: "seg_intro.m4a", Offset: 0, Duration: 3 * time.Second},
			{AssetRef: "seg_body.m4a", Offset: 3 * time.Second, Duration: 4 * time.Second},
			{AssetRef: "seg_outro.m4a", Offset: 7 * time.Second, Duration: 3 * time.Second},
		},
		Interjections: []timeline.Interjection{
			{AssetRef: "bell_half.m4a", Offset: 5 * time.Second},
		},
		Total: 10 * time.Second,
	}

	if _, err := eng.StartGuided(gStart, program); err != nil {
		log.Fatalf("启动引导会话失败: %v", err)
	}

	for i := 0; i <= 10; i++ {
		eng.Tick(gStart.Add(time.Duration(i) * time.Second))
		time.Sleep(100 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	fmt.Printf("\n🏁 引导会话结束，归档记录总数: %d\n", len(memArchive.Results()))

	fmt.Println("\n🔍 功能特性:")
	fmt.Println("   ✅ 时间戳推导的已进行时长（暂停冻结、恢复无漂移）")
	fmt.Println("   ✅ 提示音按偏移有序触发、至多一条在播")
	fmt.Println("   ✅ 引导时间线段与插入提示音顺序播放")
	fmt.Println("   ✅ 原子快照落盘与恢复、暂停超时看门狗")
	fmt.Println("\n🎉 演示完成！")
}
