package encoder

import (
	"errors"
	"fmt"
	"sort"
)

// Preset はストリーミング品質プリセットを表す
// 解像度・フレームレート・ビットレートの固定された組み合わせで、
// ビルド時に列挙が確定する
type Preset struct {
	Name    string // プリセット名
	Width   int    // ターゲット幅
	Height  int    // ターゲット高さ
	FPS     int    // ターゲットフレームレート
	Bitrate string // ターゲットビットレート（ffmpeg表記）
}

// DefaultPresetName はプリセット未指定時に適用される既定プリセット
const DefaultPresetName = "medium"

// ErrUnknownPreset は未知のプリセット名が指定されたことを表す
// 黙って既定値に切り替えることはせず、検証エラーとして扱う
var ErrUnknownPreset = errors.New("未知の品質プリセットです")

var presets = map[string]Preset{
	"low":    {Name: "low", Width: 640, Height: 480, FPS: 15, Bitrate: "500k"},
	"medium": {Name: "medium", Width: 1280, Height: 720, FPS: 30, Bitrate: "1M"},
	"high":   {Name: "high", Width: 1920, Height: 1080, FPS: 30, Bitrate: "2M"},
}

// LookupPreset はプリセット名からプリセットを取得する
// 空文字列は既定プリセット（medium）にフォールバックし、
// 未知の名前はErrUnknownPresetを返す
func LookupPreset(name string) (Preset, error) {
	if name == "" {
		name = DefaultPresetName
	}

	preset, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	return preset, nil
}

// PresetNames は利用可能なプリセット名の一覧を返す
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
