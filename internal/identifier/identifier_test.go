package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromFilename(t *testing.T) {
	testCases := []struct {
		filename string
		want     string
	}{
		{"1.mp3", "1"},
		{"001.wav", "001"},
		{"text_123.txt", "123"},
		{"audio-456.m4a", "456"},
		{"file_name_789.mp3", "789"},
		{"/tmp/uploads/42.flac", "42"},
		{"prefix_7_suffix.ogg", "7"},
		{"noDigitsHere.mp3", "noDigitsHere"},
		{"", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.filename, func(t *testing.T) {
			assert.Equal(t, tc.want, FromFilename(tc.filename))
		})
	}
}

func TestGenerate(t *testing.T) {
	got := Generate("9fa45ad0-a902-4319-b4d0-bd2b246dd46d", "en", "AUDIO")
	assert.Equal(t, "9fa45ad0_en_AUDIO", got)

	// Short ids are used as-is.
	assert.Equal(t, "abc_zh_TEXT", Generate("abc", "zh", "TEXT"))
}
