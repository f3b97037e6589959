package encoder

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"io"
	"time"

	"rovercam/internal/camera"
)

// ErrNoFrameAvailable は最初のフレームが届く前にスナップショットが
// 要求されたことを表す。呼び出し元に返されるだけで致命的ではない
var ErrNoFrameAvailable = errors.New("利用可能なフレームがありません")

// mjpegBoundary はmultipart/x-mixed-replaceのパート境界
const mjpegBoundary = "frame"

// MJPEGContentType はMJPEGストリームエンドポイントのContent-Type
const MJPEGContentType = "multipart/x-mixed-replace; boundary=" + mjpegBoundary

// SnapshotEncoder はFrameBufferの最新フレームをオンデマンドで
// JPEG圧縮するステートレスなエンコーダー
// 共有状態への書き込みを一切行わないため、このパスの遅いコンシューマや
// 失敗がキャプチャや他のストリーミングセッションに影響することはない
type SnapshotEncoder struct {
	buffer  *camera.FrameBuffer
	quality int // JPEG品質（1〜100）
}

// NewSnapshotEncoder は新しいSnapshotEncoderを作成する
func NewSnapshotEncoder(buffer *camera.FrameBuffer, quality int) *SnapshotEncoder {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &SnapshotEncoder{
		buffer:  buffer,
		quality: quality,
	}
}

// EncodeSingle は最新フレームを1枚のJPEGとして圧縮する
// まだフレームがない場合はErrNoFrameAvailableを返す
func (e *SnapshotEncoder) EncodeSingle() ([]byte, error) {
	frame := e.buffer.Latest()
	if frame == nil {
		return nil, ErrNoFrameAvailable
	}
	return e.encodeJPEG(frame)
}

// flusher はhttp.Flusherと同じ形のインターフェース
type flusher interface {
	Flush()
}

// EncodeStream はフレームが届くたびにJPEGパートをsinkへ書き込み続ける
// sinkが閉じられる（書き込みエラー）かコンテキストがキャンセルされるまで
// 継続する。多数の低頻度ビューアーが専用エンコーダーなしで
// 1つのキャプチャを共有するための仕組み
func (e *SnapshotEncoder) EncodeStream(ctx context.Context, sink io.Writer) error {
	var pos camera.Position

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, ok := e.buffer.WaitNext(pos, time.Second)
		if !ok {
			// フレームが来ないのは正常（キャプチャ停止中など）。待ち直す
			continue
		}
		pos = frame.Position()

		data, err := e.encodeJPEG(frame)
		if err != nil {
			return err
		}

		if err := writeMJPEGPart(sink, data); err != nil {
			// クライアント切断は正常なストリーム終了として扱う
			return nil
		}

		if f, ok := sink.(flusher); ok {
			f.Flush()
		}
	}
}

// encodeJPEG はフレームをJPEGバイト列へ圧縮する
func (e *SnapshotEncoder) encodeJPEG(frame *camera.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.RGBA(), &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeMJPEGPart は自己区切りのmultipartパートを1つ書き込む
func writeMJPEGPart(w io.Writer, jpegData []byte) error {
	if _, err := io.WriteString(w, "--"+mjpegBoundary+"\r\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "Content-Type: image/jpeg\r\n\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
