package server

import (
	"errors"
	"log"
	"net/http"
	"time"

	"rovercam/internal/camera"
	"rovercam/internal/encoder"

	"github.com/gin-gonic/gin"
)

// errorResponse はAPIエラーの共通フォーマット
type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// handleHealth はヘルスチェックエンドポイントの実装
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイントの実装
func (s *Server) handleStatus(c *gin.Context) {
	status := s.capture.Status()

	c.JSON(http.StatusOK, gin.H{
		"status":                 "running",
		"capture_state":          status.State,
		"capturing":              status.Capturing,
		"device":                 status.Device,
		"width":                  status.Width,
		"height":                 status.Height,
		"fps":                    status.FPS,
		"frame_count":            status.FrameCount,
		"last_error":             status.LastError,
		"active_stream_sessions": s.supervisor.ActiveSessions(),
		"timestamp":              time.Now(),
	})
}

// handleSnapshot は現在フレームを1枚のJPEGとして返す
// まだフレームが届いていなければ503を返す
func (s *Server) handleSnapshot(c *gin.Context) {
	jpegData, err := s.snapshot.EncodeSingle()
	if err != nil {
		if errors.Is(err, encoder.ErrNoFrameAvailable) {
			c.JSON(http.StatusServiceUnavailable, errorResponse{
				Error:     "no_frame_available",
				Message:   "カメラからフレームがまだ届いていません",
				Timestamp: time.Now(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:     "encode_failed",
			Message:   "スナップショットのエンコードに失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", jpegData)
}

// handleVideoFeed はMJPEGストリーミングエンドポイントの実装
// クライアントが切断するまでフレームを送り続ける
func (s *Server) handleVideoFeed(c *gin.Context) {
	c.Header("Content-Type", encoder.MJPEGContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	if err := s.snapshot.EncodeStream(c.Request.Context(), c.Writer); err != nil {
		log.Printf("MJPEGストリーミングでエラー: %v", err)
	}
}

// handleDevices は接続されているカメラデバイスの一覧を返す
func (s *Server) handleDevices(c *gin.Context) {
	devices, err := camera.ScanDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:     "scan_failed",
			Message:   "デバイスの検出に失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	infos := make([]*camera.DeviceInfo, 0, len(devices))
	for _, device := range devices {
		info, err := camera.GetDeviceInfo(c.Request.Context(), device)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}

	c.JSON(http.StatusOK, gin.H{"devices": infos})
}

// handleGetSettings は全設定を返す
func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings.All())
}

// handleUpdateSettings は設定を部分更新する
func (s *Server) handleUpdateSettings(c *gin.Context) {
	var changes map[string]any
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_request",
			Message:   "リクエストボディの解析に失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	if err := s.settings.Update(changes); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:     "save_failed",
			Message:   "設定の保存に失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, s.settings.All())
}

// handleRobotStatus はロボットコントローラーの接続状態を返す
func (s *Server) handleRobotStatus(c *gin.Context) {
	if s.robot == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "connected": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":   true,
		"connected": s.robot.IsConnected(),
		"port":      s.robot.PortName(),
	})
}

// robotCommandRequest はロボットコマンドのリクエストボディ
type robotCommandRequest struct {
	Command []any `json:"command" binding:"required"`
}

// handleRobotCommand はロボットコントローラーへコマンドを転送する
func (s *Server) handleRobotCommand(c *gin.Context) {
	if s.robot == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:     "robot_disabled",
			Message:   "ロボット機能が無効です",
			Timestamp: time.Now(),
		})
		return
	}

	var req robotCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_request",
			Message:   "コマンドの形式が不正です",
			Timestamp: time.Now(),
		})
		return
	}

	response, err := s.robot.SendCommand(req.Command)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorResponse{
			Error:     "command_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": response})
}
