package camera

import (
	"fmt"
	"strings"
	"time"

	"github.com/blackjack/webcam"
)

// v4l2Device はblackjack/webcamによるV4L2デバイス実装
type v4l2Device struct {
	cam    *webcam.Webcam
	width  int
	height int
}

// OpenV4L2 はV4L2デバイスを開き、YUYVフォーマットで要求ジオメトリを設定する
// デバイスが要求解像度をそのまま受け付けない場合はErrUnsupportedGeometryを返す
func OpenV4L2(devicePath string, settings Settings) (Device, error) {
	cam, err := webcam.Open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%v)", ErrDeviceUnavailable, devicePath, err)
	}

	// YUYV 4:2:2 フォーマットを探す
	var pixelFormat webcam.PixelFormat
	found := false
	for format, desc := range cam.GetSupportedFormats() {
		if strings.Contains(desc, "YUYV") {
			pixelFormat = format
			found = true
			break
		}
	}
	if !found {
		_ = cam.Close()
		return nil, fmt.Errorf("%w: YUYVフォーマット非対応 (%s)", ErrUnsupportedGeometry, devicePath)
	}

	_, w, h, err := cam.SetImageFormat(pixelFormat, uint32(settings.Width), uint32(settings.Height))
	if err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("%w: フォーマット設定に失敗 (%v)", ErrDeviceUnavailable, err)
	}

	// 黙って縮退しない: 実ジオメトリが要求と異なれば致命的エラー
	if int(w) != settings.Width || int(h) != settings.Height {
		_ = cam.Close()
		return nil, fmt.Errorf("%w: 要求 %dx%d に対して %dx%d が設定されました",
			ErrUnsupportedGeometry, settings.Width, settings.Height, w, h)
	}

	if err := cam.SetFramerate(float32(settings.FPS)); err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("%w: フレームレート設定に失敗 (%v)", ErrUnsupportedGeometry, err)
	}

	if err := cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("%w: ストリーミング開始に失敗 (%v)", ErrDeviceUnavailable, err)
	}

	return &v4l2Device{
		cam:    cam,
		width:  int(w),
		height: int(h),
	}, nil
}

// Geometry は実際に設定された解像度を返す
func (d *v4l2Device) Geometry() (int, int) {
	return d.width, d.height
}

// ReadFrame は1フレームを読み取りRGBAに変換して返す
func (d *v4l2Device) ReadFrame(timeout time.Duration) ([]byte, error) {
	// WaitForFrameは秒単位のタイムアウトを取る（最低1秒）
	seconds := uint32(timeout / time.Second)
	if seconds == 0 {
		seconds = 1
	}

	err := d.cam.WaitForFrame(seconds)
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return nil, ErrReadTimeout
	default:
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	raw, err := d.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: フレーム読み取りに失敗 (%v)", ErrDeviceUnavailable, err)
	}
	if len(raw) < d.width*d.height*2 {
		// 不完全なフレームはタイムアウト相当として扱う
		return nil, ErrReadTimeout
	}

	return yuyvToRGBA(raw, d.width, d.height), nil
}

// Close はストリーミングを停止しデバイスを解放する
func (d *v4l2Device) Close() error {
	_ = d.cam.StopStreaming()
	return d.cam.Close()
}

// yuyvToRGBA はYUYV 4:2:2（2ピクセル4バイト）をRGBA（1ピクセル4バイト）へ変換する
// BT.601の整数近似を使用
func yuyvToRGBA(yuyv []byte, width, height int) []byte {
	rgba := make([]byte, width*height*4)
	di := 0
	for si := 0; si+3 < len(yuyv) && di+7 < len(rgba); si += 4 {
		y0 := int(yuyv[si])
		u := int(yuyv[si+1])
		y1 := int(yuyv[si+2])
		v := int(yuyv[si+3])

		writeYUVPixel(rgba[di:di+4], y0, u, v)
		writeYUVPixel(rgba[di+4:di+8], y1, u, v)
		di += 8
	}
	return rgba
}

// writeYUVPixel は1ピクセル分のYUVをRGBAへ書き込む
func writeYUVPixel(dst []byte, y, u, v int) {
	c := y - 16
	d := u - 128
	e := v - 128

	dst[0] = clampByte((298*c + 409*e + 128) >> 8)
	dst[1] = clampByte((298*c - 100*d - 208*e + 128) >> 8)
	dst[2] = clampByte((298*c + 516*d + 128) >> 8)
	dst[3] = 0xFF
}

// clampByte は0〜255に丸める
func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
