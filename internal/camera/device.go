package camera

import (
	"errors"
	"time"
)

// キャプチャ系のエラー分類
var (
	// ErrDeviceUnavailable はデバイスのオープンまたは読み取りに失敗したことを表す
	// バックオフ付きで再試行され、ステータスには「キャプチャ停止中」として現れる
	ErrDeviceUnavailable = errors.New("カメラデバイスが利用できません")

	// ErrUnsupportedGeometry は要求した解像度・フレームレートをデバイスが
	// 受け付けられないことを表す。このキャプチャセッションは致命的終了となり、
	// 黙って低い設定に切り替えることはしない
	ErrUnsupportedGeometry = errors.New("要求された解像度・フレームレートをデバイスがサポートしていません")

	// ErrReadTimeout はフレーム読み取りの一時的なタイムアウトを表す
	// 限度回数までその場で再試行される
	ErrReadTimeout = errors.New("フレーム読み取りがタイムアウトしました")
)

// Settings はキャプチャの要求設定を表す
type Settings struct {
	Width  int // 画像幅
	Height int // 画像高さ
	FPS    int // フレームレート
}

// Device はオープン済みのキャプチャデバイスを表す
// CaptureLoopが排他的に所有し、他のコンポーネントは直接触れない
type Device interface {
	// Geometry は実際に設定された解像度を返す
	Geometry() (width, height int)

	// ReadFrame は1フレーム分のRGBAピクセルを読み取る
	// タイムアウト時はErrReadTimeout、デバイス消失などはそれ以外のエラーを返す
	ReadFrame(timeout time.Duration) ([]byte, error)

	// Close はデバイスを解放する
	Close() error
}

// Opener はデバイスパスと設定からDeviceを開く関数
// 要求ジオメトリを満たせない場合はErrUnsupportedGeometryを返す
type Opener func(devicePath string, settings Settings) (Device, error)
