// Package camera は物理カメラのキャプチャとフレーム配布の中核を担う
//
// # 責務
// - V4L2デバイスからのリアルタイムフレーム取得（CaptureLoop）
// - 最新フレームの単一スロット共有（FrameBuffer、latest-wins）
// - デバイス消失時のバックオフ付き自動再接続
// - カメラデバイスの検出と情報取得（v4l2-ctl経由）
//
// # 並行性モデル
// - CaptureLoopが専用ゴルーチンでデバイスを排他所有する
// - FrameBufferがこのパッケージ唯一のスレッド間共有状態
// - リーダーはWaitNextで新フレームを待つ。配信保証はなく、
//   ポーリング周期によって観測されるフレームの部分集合は異なる
//
// # 前提要件
//   - v4l-utils: カメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
