// Package main はRovercamサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"rovercam/internal/camera"
	"rovercam/internal/config"
	"rovercam/internal/encoder"
	"rovercam/internal/robot"
	"rovercam/internal/server"
	"rovercam/internal/settings"
	"rovercam/internal/stream"
)

func main() {
	// コマンドラインオプション
	var (
		host   = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port   = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		device = flag.String("device", "", "カメラデバイス (デフォルト: /dev/video0)")
		help   = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Rovercam")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}

	buffer := camera.NewFrameBuffer()
	capture := camera.NewCaptureLoop(
		cfg.Camera.Device,
		camera.Settings{
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		},
		camera.OpenV4L2,
		buffer,
		camera.CaptureOptions{
			ReadTimeout:       cfg.Camera.ReadTimeout,
			MaxTransientReads: cfg.Camera.MaxTransientReads,
			ReconnectBackoff:  cfg.Camera.ReconnectBackoff,
		},
	)
	snapshot := encoder.NewSnapshotEncoder(buffer, cfg.Snapshot.JPEGQuality)
	supervisor := stream.NewSupervisor(buffer, encoder.H264Options{
		UseHardware: cfg.Encoder.UseHardware,
		Preset:      cfg.Encoder.Preset,
		Tune:        cfg.Encoder.Tune,
		GOPSize:     cfg.Encoder.GOPSize,
	})

	store, err := settings.Load(cfg.SettingsFile)
	if err != nil {
		log.Fatalf("設定ストアの初期化に失敗しました: %v", err)
	}

	var controller *robot.Controller
	if cfg.Robot.Enabled {
		controller = robot.NewController(cfg.Robot.Port, cfg.Robot.BaudRate, cfg.Robot.Timeout)
		if cfg.Robot.AutoConnect {
			if err := controller.Connect(); err != nil {
				log.Printf("ロボットコントローラーへの接続に失敗: %v", err)
			}
		}
	}

	ctx := context.Background()

	if err := capture.Start(ctx); err != nil {
		log.Fatalf("キャプチャの起動に失敗しました: %v", err)
	}
	defer capture.Stop()

	if controller != nil {
		defer controller.Disconnect()
	}

	// サーバーを起動
	srv := server.New(cfg, capture, snapshot, supervisor, store, controller)
	log.Printf("Rovercam サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
