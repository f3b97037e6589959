package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"rovercam/internal/camera"
	"rovercam/internal/encoder"
)

// recordingChannel はテスト用のClientChannel実装
type recordingChannel struct {
	mu      sync.Mutex
	started int
	ended   int
}

func (c *recordingChannel) SendStarted(_, _, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
	return nil
}

func (c *recordingChannel) SendVideo(_ []byte) error { return nil }

func (c *recordingChannel) SendEnded(_ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended++
}

func (c *recordingChannel) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started, c.ended
}

// catSupervisor はcatをエンコーダーとして使うSupervisorを作る
func catSupervisor() *Supervisor {
	opts := encoder.DefaultH264Options()
	opts.Command = []string{"cat"}
	return NewSupervisor(camera.NewFrameBuffer(), opts)
}

func TestSupervisor_StartStop(t *testing.T) {
	sup := catSupervisor()
	client := &recordingChannel{}

	if err := sup.Start("client-1", "low", client); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if sup.ActiveSessions() != 1 {
		t.Errorf("アクティブセッション数: got %d, want 1", sup.ActiveSessions())
	}

	sup.Stop("client-1")

	// reapによる管理表からの削除を待つ
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && sup.ActiveSessions() != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if sup.ActiveSessions() != 0 {
		t.Errorf("停止後のアクティブセッション数: got %d, want 0", sup.ActiveSessions())
	}

	started, ended := client.counts()
	if started != 1 || ended != 1 {
		t.Errorf("通知回数: started=%d ended=%d, want 1/1", started, ended)
	}
}

func TestSupervisor_UnknownPresetRejected(t *testing.T) {
	sup := catSupervisor()

	err := sup.Start("client-1", "ultra", &recordingChannel{})
	if !errors.Is(err, encoder.ErrUnknownPreset) {
		t.Fatalf("ErrUnknownPresetを期待: got %v", err)
	}
	if sup.ActiveSessions() != 0 {
		t.Error("拒否された要求でセッションが作られています")
	}
}

func TestSupervisor_AbsentPresetUsesDefault(t *testing.T) {
	sup := catSupervisor()

	if err := sup.Start("client-1", "", &recordingChannel{}); err != nil {
		t.Fatalf("プリセット未指定は既定値で成功するべき: %v", err)
	}
	defer sup.StopAll()

	if sup.ActiveSessions() != 1 {
		t.Errorf("アクティブセッション数: got %d, want 1", sup.ActiveSessions())
	}
}

// TestSupervisor_ReplaceSemantics は同一クライアントの2度目のStartで
// 最初のセッションが完全に停止してから新セッションが有効になることを検証する
func TestSupervisor_ReplaceSemantics(t *testing.T) {
	sup := catSupervisor()
	first := &recordingChannel{}
	second := &recordingChannel{}

	if err := sup.Start("client-1", "low", first); err != nil {
		t.Fatalf("1回目のStart failed: %v", err)
	}
	if err := sup.Start("client-1", "high", second); err != nil {
		t.Fatalf("2回目のStart failed: %v", err)
	}
	defer sup.StopAll()

	// 置き換え後もクライアントあたり1セッション
	if sup.ActiveSessions() != 1 {
		t.Errorf("アクティブセッション数: got %d, want 1", sup.ActiveSessions())
	}

	// 1つ目は終了通知を受けている（Startから戻った時点で解体済み）
	_, ended := first.counts()
	if ended != 1 {
		t.Errorf("置き換えられたセッションの終了通知: got %d, want 1", ended)
	}

	started, ended := second.counts()
	if started != 1 || ended != 0 {
		t.Errorf("新セッションの通知: started=%d ended=%d, want 1/0", started, ended)
	}
}

// TestSupervisor_ConcurrentStartsSameClient は同一クライアントへの並行Startで
// セッションが取り残されないことを検証する。どう交錯しても、起動に成功した
// セッションはすべて停止され、終了通知をちょうど1回受け取る
func TestSupervisor_ConcurrentStartsSameClient(t *testing.T) {
	sup := catSupervisor()

	for i := 0; i < 20; i++ {
		a := &recordingChannel{}
		b := &recordingChannel{}

		var wg sync.WaitGroup
		var errA, errB error
		wg.Add(2)
		go func() {
			defer wg.Done()
			errA = sup.Start("client-1", "low", a)
		}()
		go func() {
			defer wg.Done()
			errB = sup.Start("client-1", "low", b)
		}()
		wg.Wait()

		sup.StopAll()

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) && sup.ActiveSessions() != 0 {
			time.Sleep(2 * time.Millisecond)
		}
		if sup.ActiveSessions() != 0 {
			t.Fatalf("繰り返し%d: StopAll後にセッションが残っています", i)
		}

		results := []struct {
			name string
			err  error
			ch   *recordingChannel
		}{
			{"a", errA, a},
			{"b", errB, b},
		}
		for _, r := range results {
			started, ended := r.ch.counts()
			if r.err == nil {
				// 起動に成功したセッションは置き換えかStopAllで必ず停止される
				if started != 1 || ended != 1 {
					t.Fatalf("繰り返し%d: %s started=%d ended=%d, want 1/1",
						i, r.name, started, ended)
				}
			} else if started != 0 || ended != 0 {
				// 置き換えに敗れて起動しなかったセッションには通知が届かない
				t.Fatalf("繰り返し%d: 起動しなかった%sへ通知が届いています: started=%d ended=%d",
					i, r.name, started, ended)
			}
		}
	}
}

func TestSupervisor_StopUnknownClientIsNoop(t *testing.T) {
	sup := catSupervisor()

	// 存在しないクライアントのStopはパニックもエラーもしない
	sup.Stop("no-such-client")
	sup.OnDisconnect("no-such-client")

	if sup.ActiveSessions() != 0 {
		t.Errorf("アクティブセッション数: got %d, want 0", sup.ActiveSessions())
	}
}

func TestSupervisor_DisconnectCleansUp(t *testing.T) {
	sup := catSupervisor()
	client := &recordingChannel{}

	if err := sup.Start("client-1", "medium", client); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sup.OnDisconnect("client-1")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && sup.ActiveSessions() != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if sup.ActiveSessions() != 0 {
		t.Errorf("切断後のアクティブセッション数: got %d, want 0", sup.ActiveSessions())
	}
}

func TestSupervisor_IndependentClients(t *testing.T) {
	sup := catSupervisor()
	a := &recordingChannel{}
	b := &recordingChannel{}

	if err := sup.Start("client-a", "low", a); err != nil {
		t.Fatalf("Start(a) failed: %v", err)
	}
	if err := sup.Start("client-b", "high", b); err != nil {
		t.Fatalf("Start(b) failed: %v", err)
	}
	defer sup.StopAll()

	if sup.ActiveSessions() != 2 {
		t.Errorf("アクティブセッション数: got %d, want 2", sup.ActiveSessions())
	}

	// 片方を止めてももう片方は影響を受けない
	sup.Stop("client-a")

	_, endedA := a.counts()
	_, endedB := b.counts()
	if endedA != 1 {
		t.Errorf("client-aの終了通知: got %d, want 1", endedA)
	}
	if endedB != 0 {
		t.Errorf("client-bに終了通知が届いています: got %d", endedB)
	}
}
