// Package robot はUSBシリアル接続のロボットコントローラーとの通信を担う
//
// Arduino・Waveshare系の汎用ロボットボードに対して、駆動コマンドを
// JSON配列（改行区切り）で送信する薄いラッパー。ストリーミング系とは
// 共有状態を持たず、シリアルポートをこのパッケージが排他所有する
package robot

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Controller はロボットコントローラーへのスレッドセーフなシリアル接続
type Controller struct {
	portName string
	baudRate int
	timeout  time.Duration

	mu        sync.Mutex
	port      serial.Port
	connected bool
}

// NewController は新しいControllerを作成する（まだ接続しない）
func NewController(portName string, baudRate int, timeout time.Duration) *Controller {
	if baudRate <= 0 {
		baudRate = 115200
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Controller{
		portName: portName,
		baudRate: baudRate,
		timeout:  timeout,
	}
}

// Connect はシリアルポートを開く。既に接続済みなら何もしない
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	port, err := serial.Open(c.portName, &serial.Mode{BaudRate: c.baudRate})
	if err != nil {
		return fmt.Errorf("ロボットコントローラーへの接続に失敗 (%s): %w", c.portName, err)
	}
	if err := port.SetReadTimeout(c.timeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("読み取りタイムアウトの設定に失敗: %w", err)
	}

	c.port = port
	c.connected = true
	log.Printf("ロボットコントローラーに接続しました: %s @ %d baud", c.portName, c.baudRate)
	return nil
}

// Disconnect はシリアルポートを閉じる
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return
	}

	if err := c.port.Close(); err != nil {
		log.Printf("シリアル接続のクローズでエラー: %v", err)
	}
	c.port = nil
	c.connected = false
	log.Printf("ロボットコントローラーから切断しました: %s", c.portName)
}

// IsConnected は接続中かを返す
func (c *Controller) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// PortName は設定されたポート名を返す
func (c *Controller) PortName() string {
	return c.portName
}

// SendCommand はJSON配列コマンド（モーター速度・サーボ角など）を
// 改行区切りで送信し、コントローラーからの応答1行を返す
func (c *Controller) SendCommand(command []any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return "", fmt.Errorf("ロボットコントローラーに接続されていません")
	}

	payload, err := json.Marshal(command)
	if err != nil {
		return "", fmt.Errorf("コマンドのシリアライズに失敗: %w", err)
	}
	payload = append(payload, '\n')

	if _, err := c.port.Write(payload); err != nil {
		return "", fmt.Errorf("コマンドの送信に失敗: %w", err)
	}

	return c.readLine()
}

// readLine は応答を1行読み取る（ロック保持前提）
// タイムアウトまでに改行が届かなければ、それまでの内容を返す
func (c *Controller) readLine() (string, error) {
	var response strings.Builder
	buf := make([]byte, 64)

	deadline := time.Now().Add(c.timeout)
	for time.Now().Before(deadline) {
		n, err := c.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("応答の読み取りに失敗: %w", err)
		}
		if n == 0 {
			// SetReadTimeoutによるタイムアウト
			break
		}

		chunk := string(buf[:n])
		if idx := strings.IndexByte(chunk, '\n'); idx >= 0 {
			response.WriteString(chunk[:idx])
			return strings.TrimSpace(response.String()), nil
		}
		response.WriteString(chunk)
	}

	return strings.TrimSpace(response.String()), nil
}
