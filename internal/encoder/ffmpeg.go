package encoder

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// H264Options はH.264エンコーダーの動作設定
type H264Options struct {
	UseHardware bool   // h264_v4l2m2m（Pi 4のハードウェアエンコーダー）を優先する
	Preset      string // libx264のプリセット（例: ultrafast）
	Tune        string // libx264のチューニング（例: zerolatency）
	GOPSize     int    // GOPサイズ

	// Command はテスト用のサブプロセスコマンド上書き
	// 空でなければffmpegの代わりにそのまま実行される
	Command []string
}

// DefaultH264Options は既定のエンコーダー設定を返す
func DefaultH264Options() H264Options {
	return H264Options{
		UseHardware: true,
		Preset:      "ultrafast",
		Tune:        "zerolatency",
		GOPSize:     30,
	}
}

var (
	codecOnce     sync.Once
	selectedCodec string
	codecErr      error
)

// selectH264Codec は利用可能な最適なH.264コーデックを選択する
// ハードウェアエンコーダー（h264_v4l2m2m）が使えればそれを、
// なければlibx264を返す。結果はプロセス内でキャッシュされる
func selectH264Codec(useHardware bool) (string, error) {
	codecOnce.Do(func() {
		if _, err := exec.LookPath("ffmpeg"); err != nil {
			codecErr = fmt.Errorf("ffmpegが見つかりません: %w", err)
			return
		}

		selectedCodec = "libx264"
		if !useHardware {
			return
		}

		output, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
		if err == nil && strings.Contains(string(output), "h264_v4l2m2m") {
			selectedCodec = "h264_v4l2m2m"
		}
	})
	return selectedCodec, codecErr
}

// buildFFmpegArgs はプリセットに合わせたffmpegコマンドラインを組み立てる
// 標準入力にRGBA生フレーム、標準出力にH.264ビットストリーム
func buildFFmpegArgs(codec string, preset Preset, opts H264Options) []string {
	args := []string{
		"ffmpeg",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", preset.Width, preset.Height),
		"-framerate", strconv.Itoa(preset.FPS),
		"-i", "-",
	}

	if codec == "h264_v4l2m2m" {
		args = append(args,
			"-c:v", "h264_v4l2m2m",
			"-b:v", preset.Bitrate,
		)
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", opts.Preset,
			"-tune", opts.Tune,
			"-b:v", preset.Bitrate,
			"-g", strconv.Itoa(opts.GOPSize),
		)
	}

	args = append(args, "-f", "h264", "-")
	return args
}
