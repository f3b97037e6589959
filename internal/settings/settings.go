// Package settings はサーバー側設定のJSONファイル永続化を担う
package settings

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// defaults は設定ファイルの既定値
// ロード時に欠けているキーはここから補完される（アップグレード対応）
func defaults() map[string]any {
	return map[string]any{
		"rover_name":         "Rover Camera",
		"active_camera_slot": nil,
		"cameras": []any{
			map[string]any{"slot": float64(1), "device": "", "enabled": false},
			map[string]any{"slot": float64(2), "device": "", "enabled": false},
			map[string]any{"slot": float64(3), "device": "", "enabled": false},
		},
	}
}

// Store はスレッドセーフなJSONファイル設定ストア
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]any
}

// Load は設定ファイルを読み込んでStoreを作成する
// ファイルが存在しない場合は既定値で新規作成する
func Load(path string) (*Store, error) {
	store := &Store{
		path:   path,
		values: defaults(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		// 新規作成
		if err := store.save(); err != nil {
			return nil, err
		}
		return store, nil
	}

	var loaded map[string]any
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Printf("設定ファイルが壊れているため既定値を使用します: %v", err)
		return store, nil
	}

	// 欠けているキーを既定値から補完
	needsSave := false
	for key, value := range store.values {
		if _, ok := loaded[key]; !ok {
			loaded[key] = value
			needsSave = true
			log.Printf("設定キーを補完しました: %s", key)
		}
	}
	store.values = loaded

	if needsSave {
		if err := store.save(); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// Get は設定値を取得する
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

// Set は設定値を更新して保存する
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.save()
}

// Update は複数の設定値をまとめて更新して保存する
func (s *Store) Update(changes map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range changes {
		s.values[key] = value
	}
	return s.save()
}

// All は全設定のコピーを返す
func (s *Store) All() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]any, len(s.values))
	for key, value := range s.values {
		copied[key] = value
	}
	return copied
}

// save は設定をファイルへ書き出す（ロック保持前提）
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("設定ディレクトリの作成に失敗: %w", err)
	}

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("設定のシリアライズに失敗: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("設定ファイルの保存に失敗: %w", err)
	}
	return nil
}
