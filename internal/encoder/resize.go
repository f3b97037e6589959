package encoder

import (
	"image"

	"golang.org/x/image/draw"

	"rovercam/internal/camera"
)

// resampleFrame はフレームを指定ジオメトリのRGBAピクセル列へリサンプリングする
// ジオメトリが一致している場合は元のピクセルをそのまま返す（コピーなし）
func resampleFrame(frame *camera.Frame, width, height int) []byte {
	if frame.Width == width && frame.Height == height {
		return frame.Pixels
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Rect, frame.RGBA(), frame.RGBA().Rect, draw.Src, nil)
	return dst.Pix
}
