package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_CreatesFileWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatal("設定ファイルが作成されていません")
	}

	name, ok := store.Get("rover_name")
	if !ok || name != "Rover Camera" {
		t.Errorf("既定のrover_name: got %v", name)
	}
}

func TestStore_SetAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := store.Set("rover_name", "テストローバー"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// 別のStoreで読み直して永続化を確認
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("再Load failed: %v", err)
	}

	name, _ := reloaded.Get("rover_name")
	if name != "テストローバー" {
		t.Errorf("永続化された値: got %v, want テストローバー", name)
	}
}

func TestStore_Update(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	err = store.Update(map[string]any{
		"rover_name":         "更新済み",
		"active_camera_slot": float64(2),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	all := store.All()
	if all["rover_name"] != "更新済み" {
		t.Errorf("rover_name: got %v", all["rover_name"])
	}
	if all["active_camera_slot"] != float64(2) {
		t.Errorf("active_camera_slot: got %v", all["active_camera_slot"])
	}
}

func TestStore_MergesMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	// rover_nameだけの古い設定ファイルを用意
	old := map[string]any{"rover_name": "旧設定"}
	data, _ := json.Marshal(old)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("テストファイルの作成に失敗: %v", err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// 既存の値は保持され、欠けていたキーは補完される
	name, _ := store.Get("rover_name")
	if name != "旧設定" {
		t.Errorf("既存の値が上書きされた: got %v", name)
	}
	if _, ok := store.Get("cameras"); !ok {
		t.Error("欠けていたキーが補完されていません")
	}
}

func TestStore_CorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	if err := os.WriteFile(path, []byte("{broken json"), 0644); err != nil {
		t.Fatalf("テストファイルの作成に失敗: %v", err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatalf("壊れたファイルでもLoadは成功するべき: %v", err)
	}

	name, _ := store.Get("rover_name")
	if name != "Rover Camera" {
		t.Errorf("既定値へのフォールバック: got %v", name)
	}
}
