package camera

import (
	"sync"
	"time"
)

// FrameBuffer は最新フレーム1枚だけを保持するスレッドセーフな共有セル
// 書き込みは常に上書き（latest-wins）でキューイングは行わない。
// 遅いコンシューマがいてもバックログが溜まらないのは設計上の意図であり、
// リーダーごとに観測できるフレームの部分集合が異なることを許容する
//
// ライターはCaptureLoopの1つのみ、リーダーは任意数。
// 排他区間はポインタ交換のみで、フレームサイズに依存しない
type FrameBuffer struct {
	mu     sync.Mutex
	frame  *Frame
	notify chan struct{} // Putごとにcloseして作り直す通知チャンネル
	count  uint64        // 累計Put回数
}

// NewFrameBuffer は新しいFrameBufferを作成する
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{
		notify: make(chan struct{}),
	}
}

// Put は保持フレームを無条件に置き換え、待機中の全リーダーを起こす
func (b *FrameBuffer) Put(frame *Frame) {
	b.mu.Lock()
	b.frame = frame
	b.count++
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()
}

// Latest は最新フレームを返す。まだフレームがない場合はnil
func (b *FrameBuffer) Latest() *Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frame
}

// WaitNext は指定位置より新しいフレームが届くまで待つ
// タイムアウトした場合は (nil, false) を返し、無限には待たない。
// 既に観測済みの位置のフレームを二重に返すことはない
func (b *FrameBuffer) WaitNext(since Position, timeout time.Duration) (*Frame, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		if b.frame != nil && b.frame.newerThan(since) {
			frame := b.frame
			b.mu.Unlock()
			return frame, true
		}
		notify := b.notify
		b.mu.Unlock()

		select {
		case <-notify:
			// 新しいフレームが書き込まれたので再確認
		case <-deadline.C:
			return nil, false
		}
	}
}

// Clear は保持フレームを破棄する
// カメラ再接続時に前セッションの古いフレームを配信しないために使う
func (b *FrameBuffer) Clear() {
	b.mu.Lock()
	b.frame = nil
	b.mu.Unlock()
}

// FrameCount は累計書き込みフレーム数を返す
func (b *FrameBuffer) FrameCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
