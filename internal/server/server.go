package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rovercam/internal/camera"
	"rovercam/internal/config"
	"rovercam/internal/encoder"
	"rovercam/internal/robot"
	"rovercam/internal/settings"
	"rovercam/internal/stream"

	"github.com/gin-gonic/gin"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	capture    *camera.CaptureLoop
	snapshot   *encoder.SnapshotEncoder
	supervisor *stream.Supervisor
	settings   *settings.Store
	robot      *robot.Controller

	engine     *gin.Engine
	httpServer *http.Server
}

// New は新しいServerインスタンスを作成する
// robotはnilでもよい（ロボット機能無効時）
func New(
	cfg *config.Config,
	capture *camera.CaptureLoop,
	snapshot *encoder.SnapshotEncoder,
	supervisor *stream.Supervisor,
	store *settings.Store,
	controller *robot.Controller,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:     cfg,
		capture:    capture,
		snapshot:   snapshot,
		supervisor: supervisor,
		settings:   store,
		robot:      controller,
		engine:     engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	// 映像系エンドポイント
	s.engine.GET("/video_feed", s.handleVideoFeed)
	s.engine.GET("/ws/video", s.handleVideoWebSocket)

	// APIエンドポイント
	api := s.engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/snapshot", s.handleSnapshot)
		api.GET("/devices", s.handleDevices)
		api.GET("/settings", s.handleGetSettings)
		api.POST("/settings", s.handleUpdateSettings)
		api.GET("/robot/status", s.handleRobotStatus)
		api.POST("/robot/command", s.handleRobotCommand)
	}
}

// Handler はテスト用にルーティング済みのhttp.Handlerを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start はサーバーを起動し、コンテキストのキャンセルか
// SIGINT/SIGTERMの受信までブロックする
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// 進行中のストリーミングセッションを先に止めてからHTTPサーバーを閉じる
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	s.supervisor.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}
