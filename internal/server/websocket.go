package server

import (
	"errors"
	"log"
	"net/http"
	"sync"

	"rovercam/internal/encoder"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// upgrader はWebSocketへのプロトコルアップグレードを行う
// 映像配信はLAN内のブラウザ・専用クライアントが対象のためオリジンは制限しない
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// controlMessage はクライアントからの制御メッセージ
type controlMessage struct {
	Type    string `json:"type"`
	Quality string `json:"quality,omitempty"`
}

// wsClient は1つのWebSocket接続をencoder.ClientChannelとして公開する
// gorilla/websocketのコネクションは並行書き込みを許さないため、
// 制御イベント（JSON）と映像データ（バイナリ）の書き込みをミューテックスで直列化する
type wsClient struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// SendStarted はストリーム開始イベントを通知する
func (c *wsClient) SendStarted(width, height, fps int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(map[string]any{
		"type":   "stream_started",
		"width":  width,
		"height": height,
		"fps":    fps,
	})
}

// SendVideo はエンコード済み映像データをバイナリフレームで送信する
func (c *wsClient) SendVideo(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// SendEnded はストリーム終了イベントを通知する
// 切断済みの接続への送信失敗は握りつぶす
func (c *wsClient) SendEnded(reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteJSON(map[string]any{
		"type":   "stream_ended",
		"reason": reason,
	})
}

// handleVideoWebSocket はWebSocket映像配信エンドポイントの実装
// 接続ごとにクライアントIDを発番し、制御メッセージの読み取りループを回す。
// 読み取りエラー（=切断）でセッションを後始末して終了する
func (s *Server) handleVideoWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocketへのアップグレードに失敗: %v", err)
		return
	}

	clientID := uuid.New().String()
	client := &wsClient{conn: conn}
	log.Printf("WebSocketクライアントが接続しました: %s", clientID)

	defer func() {
		s.supervisor.OnDisconnect(clientID)
		_ = conn.Close()
		log.Printf("WebSocketクライアントが切断しました: %s", clientID)
	}()

	for {
		var msg controlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket読み取りエラー: client=%s err=%v", clientID, err)
			}
			return
		}

		switch msg.Type {
		case "start_stream":
			if err := s.supervisor.Start(clientID, msg.Quality, client); err != nil {
				s.sendStreamError(client, err)
			}

		case "stop_stream":
			s.supervisor.Stop(clientID)

		default:
			log.Printf("未知の制御メッセージ: client=%s type=%s", clientID, msg.Type)
		}
	}
}

// sendStreamError はストリーム開始失敗をクライアントへ通知する
func (s *Server) sendStreamError(client *wsClient, err error) {
	message := "ストリームの開始に失敗しました"
	if errors.Is(err, encoder.ErrUnknownPreset) {
		message = "未知の品質プリセットです"
	}

	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	_ = client.conn.WriteJSON(map[string]any{
		"type":    "stream_error",
		"message": message,
	})
}
