package encoder

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"rovercam/internal/camera"
)

// ClientChannel は1つのストリーミングクライアントへの配信経路を表す
// WebSocket層が実装する。SendVideoのエラーはクライアント切断を意味し、
// セッションの正常終了として扱われる
type ClientChannel interface {
	// SendStarted はストリーム開始イベント（実効ジオメトリ）を通知する
	SendStarted(width, height, fps int) error

	// SendVideo はエンコード済みデータを1単位送信する
	SendVideo(data []byte) error

	// SendEnded はストリーム終了を通知する。失敗しても無視してよい
	SendEnded(reason string)
}

// セッション終了理由
const (
	EndReasonStopped       = "stopped"        // 明示的な停止要求
	EndReasonEncoderFailed = "encoder_failed" // サブプロセスのクラッシュ・EOF
	EndReasonClientClosed  = "client_closed"  // クライアント切断
)

// StreamEncoderSession は1つの接続クライアント専用のエンコードセッション
// 外部エンコーダーサブプロセスと、それを挟む2本のポンプ
// （フィーダー: FrameBuffer→サブプロセス入力、ドレイナー: サブプロセス出力→クライアント）
// を排他所有する。ライフサイクルは他のセッションやCaptureLoopから完全に独立しており、
// ここでの失敗はこのクライアントへの終了通知にしかならない
type StreamEncoderSession struct {
	preset Preset
	buffer *camera.FrameBuffer
	client ClientChannel
	opts   H264Options

	pollTimeout time.Duration // フィーダーのWaitNext上限

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	mu     sync.Mutex
	reason string

	startMu sync.Mutex // StartとStopの状態遷移を直列化する
	started bool

	quit      chan struct{} // 終了シグナル（失敗・停止要求の合流点）
	stopped   chan struct{} // 解体完了
	failOnce  sync.Once
	closeOnce sync.Once // stoppedはsuperviseか未起動Stopのどちらか一方が閉じる
	pumps     sync.WaitGroup
}

// NewStreamEncoderSession は新しいセッションを作成する（まだ開始しない）
func NewStreamEncoderSession(preset Preset, buffer *camera.FrameBuffer, client ClientChannel, opts H264Options) *StreamEncoderSession {
	return &StreamEncoderSession{
		preset:      preset,
		buffer:      buffer,
		client:      client,
		opts:        opts,
		pollTimeout: 100 * time.Millisecond,
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Preset はこのセッションの品質プリセットを返す
func (s *StreamEncoderSession) Preset() Preset {
	return s.preset
}

// Start はエンコーダーサブプロセスを起動し、フィーダー・ドレイナーを開始する
// 既にStopされたセッションの起動は拒否する
func (s *StreamEncoderSession) Start() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	select {
	case <-s.quit:
		return errors.New("停止済みのセッションは開始できません")
	default:
	}

	argv := s.opts.Command
	if len(argv) == 0 {
		codec, err := selectH264Codec(s.opts.UseHardware)
		if err != nil {
			return err
		}
		argv = buildFFmpegArgs(codec, s.preset, s.opts)
	}

	cmd := exec.Command(argv[0], argv[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("エンコーダー入力パイプの作成に失敗: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("エンコーダー出力パイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("エンコーダーの起動に失敗: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout
	s.started = true

	s.pumps.Add(2)
	go s.feed()
	go s.drain()
	go s.supervise()

	if err := s.client.SendStarted(s.preset.Width, s.preset.Height, s.preset.FPS); err != nil {
		s.fail(EndReasonClientClosed)
	}

	return nil
}

// Stop はセッションを停止する。サブプロセスの終了と両ポンプの合流が
// 完了するまでブロックする。どのゴルーチンから何度呼んでも安全で、
// 内部の失敗シグナルと競合しても解体は1回しか実行されない
func (s *StreamEncoderSession) Stop() {
	s.fail(EndReasonStopped)

	// 未起動のセッションには解体すべきサブプロセスもポンプもない
	// ここでquitを閉じた後のStartは拒否されるため、superviseが後から走ることもない
	s.startMu.Lock()
	if !s.started {
		s.closeStopped()
	}
	s.startMu.Unlock()

	<-s.stopped
}

// Stopped は解体完了時にクローズされるチャンネルを返す
func (s *StreamEncoderSession) Stopped() <-chan struct{} {
	return s.stopped
}

// EndReason は終了理由を返す（終了前は空文字列）
func (s *StreamEncoderSession) EndReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// fail は終了理由を記録し、解体をトリガーする。最初の呼び出しだけが有効
func (s *StreamEncoderSession) fail(reason string) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.quit)
	})
}

// feed はFrameBufferから新フレームを取り出してサブプロセス入力へ書き込む
// タイムアウトで新フレームがなければスキップする（フレームの複製はしない）
// エンコード速度は実キャプチャレートを反映し、合成クロックは使わない
func (s *StreamEncoderSession) feed() {
	defer s.pumps.Done()

	var pos camera.Position
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		frame, ok := s.buffer.WaitNext(pos, s.pollTimeout)
		if !ok {
			continue
		}
		pos = frame.Position()

		// プリセットのジオメトリと異なる場合はリサンプリングしてから転送
		pixels := resampleFrame(frame, s.preset.Width, s.preset.Height)

		if _, err := s.stdin.Write(pixels); err != nil {
			// サブプロセス入力が閉じた: セッション失敗を通知して終了
			s.fail(EndReasonEncoderFailed)
			return
		}
	}
}

// drain はサブプロセス出力からエンコード済みデータを読み、クライアントへ転送する
func (s *StreamEncoderSession) drain() {
	defer s.pumps.Done()

	buf := make([]byte, 4096)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if sendErr := s.client.SendVideo(data); sendErr != nil {
				// クライアント切断は正常終了。ログには残さない
				s.fail(EndReasonClientClosed)
				return
			}
		}
		if err != nil {
			// EOF・読み取りエラー: サブプロセス終了
			s.fail(EndReasonEncoderFailed)
			return
		}
	}
}

// supervise は終了シグナルを待ち、解体を1回だけ実行する
// サブプロセスの強制終了→両ポンプの合流→クライアントへの終了通知の順
func (s *StreamEncoderSession) supervise() {
	<-s.quit

	// 入力を閉じてからプロセスを殺す。ポンプのブロッキングI/Oはここで解ける
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}

	s.pumps.Wait()
	_ = s.cmd.Wait()

	reason := s.EndReason()
	s.client.SendEnded(reason)

	if reason == EndReasonEncoderFailed {
		log.Printf("エンコーダーセッションが異常終了しました（preset=%s）", s.preset.Name)
	}

	s.closeStopped()
}

// closeStopped は解体完了チャンネルを1回だけ閉じる
func (s *StreamEncoderSession) closeStopped() {
	s.closeOnce.Do(func() { close(s.stopped) })
}
