// Package config はアプリケーション全体の設定を管理する
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Encoder  EncoderConfig  `yaml:"encoder"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Robot    RobotConfig    `yaml:"robot"`

	// SettingsFile はサーバー側設定（JSON）の保存先パス
	SettingsFile string `yaml:"settings_file"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト（0=ストリーミング用に無効）
}

// CameraConfig はカメラキャプチャの設定
type CameraConfig struct {
	Device string `yaml:"device"` // デバイスパス (例: /dev/video0)
	Width  int    `yaml:"width"`  // 要求画像幅
	Height int    `yaml:"height"` // 要求画像高さ
	FPS    int    `yaml:"fps"`    // 要求フレームレート

	ReadTimeout       time.Duration `yaml:"read_timeout"`        // フレーム読み取りの上限待ち
	MaxTransientReads int           `yaml:"max_transient_reads"` // 一時的エラーの許容連続回数
	ReconnectBackoff  time.Duration `yaml:"reconnect_backoff"`   // 再接続バックオフ
}

// EncoderConfig はH.264エンコーダーの設定
type EncoderConfig struct {
	UseHardware bool   `yaml:"use_hardware"` // h264_v4l2m2mを優先する
	Preset      string `yaml:"preset"`       // libx264プリセット
	Tune        string `yaml:"tune"`         // libx264チューニング
	GOPSize     int    `yaml:"gop_size"`     // GOPサイズ
}

// SnapshotConfig はスナップショット・MJPEG配信の設定
type SnapshotConfig struct {
	JPEGQuality int `yaml:"jpeg_quality"` // JPEG品質（1〜100）
}

// RobotConfig はロボットコントローラーの設定
type RobotConfig struct {
	Enabled     bool          `yaml:"enabled"`      // ロボット機能の有効化
	Port        string        `yaml:"port"`         // シリアルポート (例: /dev/ttyUSB0)
	BaudRate    int           `yaml:"baud_rate"`    // ボーレート
	Timeout     time.Duration `yaml:"timeout"`      // 読み書きタイムアウト
	AutoConnect bool          `yaml:"auto_connect"` // 起動時に自動接続する
}

// Load は設定を読み込む
// 既定値 → ROVERCAM_CONFIGで指定されたYAMLファイル → 環境変数の順で上書きする
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Device:            "/dev/video0",
			Width:             1280,
			Height:            720,
			FPS:               30,
			ReadTimeout:       time.Second,
			MaxTransientReads: 10,
			ReconnectBackoff:  2 * time.Second,
		},
		Encoder: EncoderConfig{
			UseHardware: true,
			Preset:      "ultrafast",
			Tune:        "zerolatency",
			GOPSize:     30,
		},
		Snapshot: SnapshotConfig{
			JPEGQuality: 80,
		},
		Robot: RobotConfig{
			Enabled:  false,
			Port:     "/dev/ttyUSB0",
			BaudRate: 115200,
			Timeout:  time.Second,
		},
		SettingsFile: "settings.json",
	}

	// YAMLファイルによる上書き
	if path := os.Getenv("ROVERCAM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗 (%s): %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
		}
	}

	// 環境変数による上書き
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", cfg.Camera.Device)
	cfg.Camera.Width = getEnvAsIntOrDefault("CAMERA_WIDTH", cfg.Camera.Width)
	cfg.Camera.Height = getEnvAsIntOrDefault("CAMERA_HEIGHT", cfg.Camera.Height)
	cfg.Camera.FPS = getEnvAsIntOrDefault("CAMERA_FPS", cfg.Camera.FPS)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	if c.Camera.Device == "" {
		return fmt.Errorf("カメラデバイスが指定されていません")
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		return fmt.Errorf("無効なFPS値: %d", c.Camera.FPS)
	}
	if c.Camera.Width <= 0 || c.Camera.Width > 4096 {
		return fmt.Errorf("無効な幅: %d", c.Camera.Width)
	}
	if c.Camera.Height <= 0 || c.Camera.Height > 4096 {
		return fmt.Errorf("無効な高さ: %d", c.Camera.Height)
	}

	if c.Snapshot.JPEGQuality < 1 || c.Snapshot.JPEGQuality > 100 {
		return fmt.Errorf("無効なJPEG品質: %d", c.Snapshot.JPEGQuality)
	}

	if c.Robot.Enabled && c.Robot.Port == "" {
		return fmt.Errorf("ロボットが有効ですがシリアルポートが指定されていません")
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
