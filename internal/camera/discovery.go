package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device  string   `json:"device"`  // デバイスパス
	Name    string   `json:"name"`    // カメラ名（v4l2-ctlのCard type）
	Formats []string `json:"formats"` // サポートされるピクセルフォーマット
}

// ScanDevices はシステム内のキャプチャ可能なV4L2デバイスをスキャンする
// カラーフォーマット（YUYV/MJPG）を持つデバイスのみを返す
func ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []string
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if !IsDeviceAvailable(match) {
			continue
		}
		if hasColorFormat(ctx, match) {
			devices = append(devices, match)
		}
	}

	return devices, nil
}

// IsDeviceAvailable はデバイスファイルが存在し読み取り可能かチェックする
func IsDeviceAvailable(device string) bool {
	if matched, _ := regexp.MatchString(`^/dev/video\d+$`, device); !matched {
		return false
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// GetDeviceInfo はv4l2-ctl経由でデバイスの詳細情報を取得する
func GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !IsDeviceAvailable(device) {
		return nil, fmt.Errorf("デバイスが利用できません: %s", device)
	}

	return &DeviceInfo{
		Device:  device,
		Name:    deviceName(ctx, device),
		Formats: listFormats(ctx, device),
	}, nil
}

// deviceName はv4l2-ctlの出力からカメラ名を取得する
func deviceName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info")
	output, err := cmd.Output()
	if err == nil {
		for _, line := range strings.Split(string(output), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "Card type") {
				if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
					if name := strings.TrimSpace(parts[1]); name != "" {
						return name
					}
				}
			}
		}
	}

	// フォールバック: デバイス番号から生成
	return fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
}

// listFormats はデバイスのサポートフォーマット一覧を取得する
func listFormats(ctx context.Context, device string) []string {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--list-formats")
	output, err := cmd.Output()
	if err != nil {
		return nil
	}

	// "[0]: 'YUYV' (YUYV 4:2:2)" 形式の行からフォーマット名を抽出
	re := regexp.MustCompile(`'([A-Z0-9]{4})'`)
	var formats []string
	for _, match := range re.FindAllStringSubmatch(string(output), -1) {
		formats = append(formats, match[1])
	}
	return formats
}

// hasColorFormat はデバイスがカラーフォーマットをサポートするかチェックする
// グレースケール専用チャンネル（赤外線センサ等）を除外する
func hasColorFormat(ctx context.Context, device string) bool {
	for _, format := range listFormats(ctx, device) {
		if format == "YUYV" || format == "MJPG" {
			return true
		}
	}
	return false
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	re := regexp.MustCompile(`video(\d+)`)
	matches := re.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}
