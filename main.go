package main

import (
	"context"
	"log"

	"rovercam/internal/camera"
	"rovercam/internal/config"
	"rovercam/internal/encoder"
	"rovercam/internal/robot"
	"rovercam/internal/server"
	"rovercam/internal/settings"
	"rovercam/internal/stream"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}

// run はアプリケーション全体を組み立てて起動する
func run(cfg *config.Config) error {
	// フレームバッファとキャプチャループ
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

	// エンコーダー
	snapshot := encoder.NewSnapshotEncoder(buffer, cfg.Snapshot.JPEGQuality)
	supervisor := stream.NewSupervisor(buffer, encoder.H264Options{
		UseHardware: cfg.Encoder.UseHardware,
		Preset:      cfg.Encoder.Preset,
		Tune:        cfg.Encoder.Tune,
		GOPSize:     cfg.Encoder.GOPSize,
	})

	// サーバー側設定ストア
	store, err := settings.Load(cfg.SettingsFile)
	if err != nil {
		return err
	}

	// ロボットコントローラー（有効時のみ）
	var controller *robot.Controller
	if cfg.Robot.Enabled {
		controller = robot.NewController(cfg.Robot.Port, cfg.Robot.BaudRate, cfg.Robot.Timeout)
		if cfg.Robot.AutoConnect {
			if err := controller.Connect(); err != nil {
				// 接続失敗でも映像配信は継続する
				log.Printf("ロボットコントローラーへの接続に失敗: %v", err)
			}
		}
	}

	ctx := context.Background()

	// キャプチャを起動
	if err := capture.Start(ctx); err != nil {
		return err
	}
	defer capture.Stop()

	if controller != nil {
		defer controller.Disconnect()
	}

	// サーバーを起動（シグナル受信までブロックする）
	srv := server.New(cfg, capture, snapshot, supervisor, store, controller)
	return srv.Start(ctx)
}
