// Package stream はストリーミングセッションの生成・追跡・解体を仲介する
//
// クライアント1つにつき同時に存在できるStreamEncoderSessionは最大1つで、
// 同じクライアントからの2度目の開始要求は既存セッションを置き換える。
// 総セッション数の上限は設けない（レート制限は上位の運用層の責務）
package stream

import (
	"log"
	"sync"

	"rovercam/internal/camera"
	"rovercam/internal/encoder"
)

// Supervisor はアクティブなストリーミングセッションの集合を管理する
type Supervisor struct {
	buffer *camera.FrameBuffer
	opts   encoder.H264Options

	mu       sync.Mutex
	sessions map[string]*encoder.StreamEncoderSession
}

// NewSupervisor は新しいSupervisorを作成する
func NewSupervisor(buffer *camera.FrameBuffer, opts encoder.H264Options) *Supervisor {
	return &Supervisor{
		buffer:   buffer,
		opts:     opts,
		sessions: make(map[string]*encoder.StreamEncoderSession),
	}
}

// Start は指定クライアント向けのセッションを開始する
// 既存セッションがあれば完全に停止してから（置き換えセマンティクス）新規作成する。
// プリセット名が空なら既定プリセット、未知ならErrUnknownPresetを返す
func (s *Supervisor) Start(clientID, presetName string, client encoder.ClientChannel) error {
	preset, err := encoder.LookupPreset(presetName)
	if err != nil {
		return err
	}

	session := encoder.NewStreamEncoderSession(preset, s.buffer, client, s.opts)

	// 確認→停止→登録を原子的に行う: 空きスロットの確認と新セッションの登録が
	// 同じ排他区間に入るまで、既存セッションの完全停止を繰り返す。
	// 同一クライアントへの並行Startがどう交錯しても、サブプロセスが
	// 2つ生きる瞬間と、停止されないまま管理表から消えるセッションは生まれない
	for {
		s.mu.Lock()
		existing := s.sessions[clientID]
		if existing == nil {
			s.sessions[clientID] = session
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()

		existing.Stop()

		s.mu.Lock()
		if s.sessions[clientID] == existing {
			delete(s.sessions, clientID)
		}
		s.mu.Unlock()
	}

	// 登録が先、起動が後: 登録済みセッションはStopAllや置き換えから必ず見える。
	// 起動前にStopされた場合はStartが拒否されるので、ここで登録を取り消す
	if err := session.Start(); err != nil {
		s.mu.Lock()
		if s.sessions[clientID] == session {
			delete(s.sessions, clientID)
		}
		s.mu.Unlock()
		return err
	}

	log.Printf("ストリーミングセッションを開始しました: client=%s preset=%s", clientID, preset.Name)

	go s.reap(clientID, session)
	return nil
}

// reap はセッションの解体完了を待って管理表から取り除く
// 置き換え後の新セッションを誤って消さないよう、同一性を確認する
func (s *Supervisor) reap(clientID string, session *encoder.StreamEncoderSession) {
	<-session.Stopped()

	s.mu.Lock()
	if s.sessions[clientID] == session {
		delete(s.sessions, clientID)
	}
	s.mu.Unlock()
}

// Stop は指定クライアントのセッションを停止する
// セッションが存在しない場合は何もしない（エラーにもならない）
func (s *Supervisor) Stop(clientID string) {
	s.mu.Lock()
	session := s.sessions[clientID]
	s.mu.Unlock()

	if session != nil {
		session.Stop()
		log.Printf("ストリーミングセッションを停止しました: client=%s", clientID)
	}
}

// OnDisconnect はクライアント切断時の後始末。Stopと同じ
func (s *Supervisor) OnDisconnect(clientID string) {
	s.Stop(clientID)
}

// ActiveSessions は現在アクティブなセッション数を返す
func (s *Supervisor) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StopAll は全セッションを停止する（サーバーシャットダウン用）
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	sessions := make([]*encoder.StreamEncoderSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.Stop()
	}
}
