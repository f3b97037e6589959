package camera

import "testing"

func TestExtractDeviceNumber(t *testing.T) {
	testCases := []struct {
		device string
		want   int
	}{
		{"/dev/video0", 0},
		{"/dev/video1", 1},
		{"/dev/video23", 23},
		{"/dev/null", 0},
		{"", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.device, func(t *testing.T) {
			if got := extractDeviceNumber(tc.device); got != tc.want {
				t.Errorf("extractDeviceNumber(%q) = %d, want %d", tc.device, got, tc.want)
			}
		})
	}
}

func TestIsDeviceAvailable_RejectsNonVideoPaths(t *testing.T) {
	// /dev/video* パターン以外は開けるファイルでも拒否する
	testCases := []string{
		"/dev/null",
		"/etc/hosts",
		"/dev/video", // 番号なし
		"",
	}

	for _, device := range testCases {
		if IsDeviceAvailable(device) {
			t.Errorf("IsDeviceAvailable(%q) = true, want false", device)
		}
	}
}
