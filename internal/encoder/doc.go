// Package encoder はフレームの圧縮と配信パスを担う
//
// # 責務
// - スナップショット・MJPEGストリーム用のオンデマンドJPEG圧縮（SnapshotEncoder）
// - クライアントごとのH.264ストリーミングセッション（StreamEncoderSession）
// - ffmpegサブプロセスの生成・監視・確実な解体
// - 品質プリセットの定義と検証
//
// # 設計
// SnapshotEncoderはFrameBufferを読むだけのステートレスな経路で、
// 呼び出し側のゴルーチンで実行される。StreamEncoderSessionは
// セッションごとにサブプロセス1つとポンプゴルーチン2本を所有し、
// どの出口経路（停止要求・サブプロセス死亡・クライアント切断）でも
// サブプロセスの終了と両ポンプの合流を保証する
//
// # 前提要件
//   - ffmpeg: H.264エンコードに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//     Raspberry Pi 4ではh264_v4l2m2mハードウェアエンコーダーを自動選択する
package encoder
