package camera

import (
	"sync"
	"testing"
	"time"
)

// testFrame はテスト用フレームを作成する
func testFrame(generation, sequence uint64) *Frame {
	return &Frame{
		Pixels:     make([]byte, 4*2*2),
		Width:      2,
		Height:     2,
		Generation: generation,
		Sequence:   sequence,
		CapturedAt: time.Now(),
	}
}

func TestFrameBuffer_LatestWins(t *testing.T) {
	buffer := NewFrameBuffer()

	if buffer.Latest() != nil {
		t.Fatal("初期状態ではフレームなしを期待")
	}

	buffer.Put(testFrame(1, 1))
	buffer.Put(testFrame(1, 2))
	buffer.Put(testFrame(1, 3))

	latest := buffer.Latest()
	if latest == nil {
		t.Fatal("フレームが取得できません")
	}
	if latest.Sequence != 3 {
		t.Errorf("最新フレームの連番: got %d, want 3", latest.Sequence)
	}
	if buffer.FrameCount() != 3 {
		t.Errorf("累計フレーム数: got %d, want 3", buffer.FrameCount())
	}
}

func TestFrameBuffer_WaitNextDeliversNewFrame(t *testing.T) {
	buffer := NewFrameBuffer()
	buffer.Put(testFrame(1, 1))

	// 観測済み位置より新しいフレームのみが返る
	frame, ok := buffer.WaitNext(Position{}, time.Second)
	if !ok {
		t.Fatal("既存フレームが即座に返るべき")
	}
	if frame.Sequence != 1 {
		t.Errorf("連番: got %d, want 1", frame.Sequence)
	}

	// 書き込みを遅延させてブロッキング待ちを確認
	go func() {
		time.Sleep(50 * time.Millisecond)
		buffer.Put(testFrame(1, 2))
	}()

	frame, ok = buffer.WaitNext(frame.Position(), time.Second)
	if !ok {
		t.Fatal("新フレームの到着を待てるべき")
	}
	if frame.Sequence != 2 {
		t.Errorf("連番: got %d, want 2", frame.Sequence)
	}
}

func TestFrameBuffer_WaitNextTimeout(t *testing.T) {
	buffer := NewFrameBuffer()
	buffer.Put(testFrame(1, 5))

	timeout := 100 * time.Millisecond
	start := time.Now()
	frame, ok := buffer.WaitNext(Position{Generation: 1, Sequence: 5}, timeout)
	elapsed := time.Since(start)

	if ok || frame != nil {
		t.Fatal("観測済みフレームが再配信されてはならない")
	}
	if elapsed < timeout {
		t.Errorf("タイムアウト前に返った: %v < %v", elapsed, timeout)
	}
	if elapsed > timeout+200*time.Millisecond {
		t.Errorf("タイムアウトの超過が大きすぎる: %v", elapsed)
	}
}

func TestFrameBuffer_GenerationResetDelivers(t *testing.T) {
	buffer := NewFrameBuffer()
	buffer.Put(testFrame(1, 500))

	frame, ok := buffer.WaitNext(Position{}, time.Second)
	if !ok || frame.Sequence != 500 {
		t.Fatal("世代1のフレームが取得できません")
	}

	// 再接続: クリア後、新世代は連番1から再開する
	buffer.Clear()
	if buffer.Latest() != nil {
		t.Fatal("Clear後はフレームなしを期待")
	}

	buffer.Put(testFrame(2, 1))

	// 旧世代の大きな連番を観測済みでも、新世代のフレームは配信される
	next, ok := buffer.WaitNext(frame.Position(), time.Second)
	if !ok {
		t.Fatal("新世代のフレームが配信されるべき")
	}
	if next.Generation != 2 || next.Sequence != 1 {
		t.Errorf("新世代フレーム: got gen=%d seq=%d, want gen=2 seq=1", next.Generation, next.Sequence)
	}
}

// TestFrameBuffer_ConcurrentReadersNoTearing はライター1・リーダー多数で
// 途中状態のフレームが観測されないことを検証する
func TestFrameBuffer_ConcurrentReadersNoTearing(t *testing.T) {
	buffer := NewFrameBuffer()

	const totalFrames = 500
	const readers = 8

	var wg sync.WaitGroup

	// ライター: 連番を単調増加で書き込む
	wg.Add(1)
	go func() {
		defer wg.Done()
		for seq := uint64(1); seq <= totalFrames; seq++ {
			frame := testFrame(1, seq)
			// ピクセルに連番を刻んで破損検出に使う
			frame.Pixels[0] = byte(seq)
			frame.Pixels[1] = byte(seq >> 8)
			buffer.Put(frame)
		}
	}()

	// リーダー: 観測した連番が単調増加で、ピクセルが連番と一致することを確認
	errCh := make(chan string, readers)
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var pos Position
			for {
				frame, ok := buffer.WaitNext(pos, 200*time.Millisecond)
				if !ok {
					return
				}
				if !frame.newerThan(pos) {
					errCh <- "古いフレームが配信された"
					return
				}
				got := uint64(frame.Pixels[0]) | uint64(frame.Pixels[1])<<8
				if got != frame.Sequence&0xFFFF {
					errCh <- "フレーム内容と連番が不一致（破損）"
					return
				}
				pos = frame.Position()
				if pos.Sequence == totalFrames {
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)
	for msg := range errCh {
		t.Error(msg)
	}
}
