package camera

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// State はキャプチャセッションの状態を表す
type State string

const (
	StateStopped State = "stopped" // 停止中
	StateOpening State = "opening" // デバイスオープン試行中
	StateRunning State = "running" // キャプチャ動作中
	StateError   State = "error"   // エラー発生（再接続待ち）
)

// CaptureStatus はステータスエンドポイント向けのスナップショット
type CaptureStatus struct {
	State      State  // 現在の状態
	Capturing  bool   // キャプチャ動作中か
	Device     string // デバイスパス
	Width      int    // 実解像度幅（Running時のみ有効）
	Height     int    // 実解像度高さ
	FPS        int    // 要求フレームレート
	FrameCount uint64 // 累計キャプチャフレーム数
	LastError  string // 直近のエラー（なければ空）
}

// CaptureLoop は物理カメラを排他的に所有し、専用ゴルーチンで
// フレームを取り込んでFrameBufferへ書き込み続ける
// コンシューマの数や種類は関知しない（FrameBufferが生産者と消費者を分離する）
type CaptureLoop struct {
	devicePath string
	settings   Settings
	opener     Opener
	buffer     *FrameBuffer

	readTimeout  time.Duration // デバイス読み取りの上限待ち時間
	maxTransient int           // 一時的エラーのその場再試行回数
	backoff      time.Duration // 再接続までの待機時間

	mu         sync.Mutex
	state      State
	lastErr    error
	width      int
	height     int
	generation uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// CaptureOptions はCaptureLoopの動作パラメータ
type CaptureOptions struct {
	ReadTimeout       time.Duration // デバイス読み取りタイムアウト
	MaxTransientReads int           // 一時的エラーの許容連続回数
	ReconnectBackoff  time.Duration // 再接続バックオフ
}

// NewCaptureLoop は新しいCaptureLoopを作成する
func NewCaptureLoop(devicePath string, settings Settings, opener Opener, buffer *FrameBuffer, opts CaptureOptions) *CaptureLoop {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = time.Second
	}
	if opts.MaxTransientReads <= 0 {
		opts.MaxTransientReads = 10
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = 2 * time.Second
	}

	return &CaptureLoop{
		devicePath:   devicePath,
		settings:     settings,
		opener:       opener,
		buffer:       buffer,
		readTimeout:  opts.ReadTimeout,
		maxTransient: opts.MaxTransientReads,
		backoff:      opts.ReconnectBackoff,
		state:        StateStopped,
		stopCh:       make(chan struct{}),
	}
}

// Start はキャプチャループを専用ゴルーチンで開始する
func (c *CaptureLoop) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("キャプチャループは既に開始されています")
	}
	c.started = true

	c.wg.Add(1)
	go c.run(ctx)

	return nil
}

// Stop はキャプチャを停止し、ゴルーチンの終了とデバイス解放を待つ
// 複数回呼んでも安全
func (c *CaptureLoop) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// Status は現在の状態スナップショットを返す
func (c *CaptureLoop) Status() CaptureStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := CaptureStatus{
		State:      c.state,
		Capturing:  c.state == StateRunning,
		Device:     c.devicePath,
		FPS:        c.settings.FPS,
		FrameCount: c.buffer.FrameCount(),
	}
	if c.state == StateRunning {
		status.Width = c.width
		status.Height = c.height
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	return status
}

// run はキャプチャのメインループ
// 停止が指示されるまで、オープン→キャプチャ→（エラー時）再接続を繰り返す
func (c *CaptureLoop) run(ctx context.Context) {
	defer c.wg.Done()
	defer c.setState(StateStopped, nil)

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.setState(StateOpening, nil)

		device, err := c.opener(c.devicePath, c.settings)
		if err != nil {
			if errors.Is(err, ErrUnsupportedGeometry) {
				// ジオメトリ非対応は再試行しない。状態に残してループ終了
				log.Printf("カメラのジオメトリが非対応のため停止します: %v", err)
				c.setState(StateError, err)
				c.waitStop(ctx)
				return
			}

			log.Printf("カメラのオープンに失敗しました（%v後に再試行）: %v", c.backoff, err)
			c.setState(StateError, err)
			if !c.sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		// Running遷移の瞬間にバッファをクリアし世代を進める
		// 前セッションの古いジオメトリ・連番が見えることは決してない
		width, height := device.Geometry()
		c.buffer.Clear()
		c.mu.Lock()
		c.generation++
		generation := c.generation
		c.width = width
		c.height = height
		c.state = StateRunning
		c.lastErr = nil
		c.mu.Unlock()

		log.Printf("カメラを開始しました: %s %dx%d @ %d fps", c.devicePath, width, height, c.settings.FPS)

		fatal := c.captureFrames(ctx, device, generation, width, height)
		_ = device.Close()

		if !fatal {
			// 停止指示による終了
			return
		}

		// 再接続の間、前セッションの最後のフレームがLatest/WaitNextや
		// スナップショットから見え続けないよう、ここでも破棄する
		c.buffer.Clear()

		// 物理的な再接続は期待される運用なので無制限に再試行する
		if !c.sleep(ctx, c.backoff) {
			return
		}
	}
}

// captureFrames はオープン済みデバイスからフレームを取り込み続ける
// 致命的エラーで抜けた場合はtrue、停止指示の場合はfalseを返す
func (c *CaptureLoop) captureFrames(ctx context.Context, device Device, generation uint64, width, height int) bool {
	var sequence uint64
	transient := 0

	for {
		select {
		case <-c.stopCh:
			return false
		case <-ctx.Done():
			return false
		default:
		}

		pixels, err := device.ReadFrame(c.readTimeout)
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				transient++
				if transient <= c.maxTransient {
					continue
				}
				// 限度を超えた一時的エラーは致命的エラーへ昇格
				err = ErrDeviceUnavailable
			}

			log.Printf("カメラの読み取りが致命的に失敗しました: %v", err)
			c.setState(StateError, err)
			return true
		}

		transient = 0
		sequence++

		c.buffer.Put(&Frame{
			Pixels:     pixels,
			Width:      width,
			Height:     height,
			Generation: generation,
			Sequence:   sequence,
			CapturedAt: time.Now(),
		})
	}
}

// setState は状態と直近エラーを更新する
func (c *CaptureLoop) setState(state State, err error) {
	c.mu.Lock()
	c.state = state
	if err != nil {
		c.lastErr = err
	}
	c.mu.Unlock()
}

// sleep は停止指示に割り込まれうる待機。続行すべきならtrueを返す
func (c *CaptureLoop) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-c.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// waitStop は停止指示まで待機する
func (c *CaptureLoop) waitStop(ctx context.Context) {
	select {
	case <-c.stopCh:
	case <-ctx.Done():
	}
}
