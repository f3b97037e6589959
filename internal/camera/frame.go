package camera

import (
	"image"
	"time"
)

// Frame はキャプチャされた1枚の画像と付随メタデータを表す不変値
// Pixels はRGBA形式（1ピクセル4バイト、行ストライドは 4*Width）で、
// 構築後は書き込み禁止。コンシューマは参照の読み取りのみを行う
type Frame struct {
	Pixels     []byte    // RGBA生データ
	Width      int       // 画像幅（ピクセル）
	Height     int       // 画像高さ（ピクセル）
	Generation uint64    // キャプチャ実行世代（再接続ごとに増加）
	Sequence   uint64    // 世代内の連番（1始まり、再接続でリセット）
	CapturedAt time.Time // キャプチャ時刻（単調時計）
}

// Position はフレームの世代・連番位置を表す
// リーダーが「どこまで観測したか」を保持するカーソルとして使う
type Position struct {
	Generation uint64
	Sequence   uint64
}

// Position はこのフレームの位置を返す
func (f *Frame) Position() Position {
	return Position{Generation: f.Generation, Sequence: f.Sequence}
}

// newerThan はこのフレームが指定位置より新しいかを判定する
// 世代が進んでいれば連番に関係なく新しいとみなす（再接続後の連番リセット対応）
func (f *Frame) newerThan(pos Position) bool {
	if f.Generation != pos.Generation {
		return f.Generation > pos.Generation
	}
	return f.Sequence > pos.Sequence
}

// RGBA はピクセルデータを image.RGBA として参照する（コピーなし）
// 返り値の画像は読み取り専用として扱うこと
func (f *Frame) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pixels,
		Stride: 4 * f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}
