package langdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	testCases := []struct {
		name string
		text string
		want string
	}{
		{name: "empty defaults to english", text: "", want: "en"},
		{name: "whitespace only", text: "   \n\t", want: "en"},
		{name: "english", text: "The quick brown fox jumps over the lazy dog and this is fine", want: "en"},
		{name: "chinese", text: "这是一个用于测试的中文句子", want: "zh"},
		{name: "japanese hiragana", text: "これはテストです", want: "ja"},
		{name: "korean", text: "이것은 테스트 문장입니다", want: "ko"},
		{name: "french", text: "le chat est sur la table avec les enfants dans la maison", want: "fr"},
		{name: "german", text: "der Hund ist mit der Katze und ein Vogel auf dem Dach", want: "de"},
		{name: "spanish", text: "el perro es un animal con una casa para este niño", want: "es"},
		{name: "digits only defaults to english", text: "12345 67890", want: "en"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Detect(tc.text))
		})
	}
}

func TestDetectMixedChineseEnglish(t *testing.T) {
	// A minority of han characters still tips the guess to Chinese once the
	// latin ratio falls below the threshold.
	got := Detect("服务器 config 文件 路径 设置 错误 日志 输出")
	assert.Equal(t, "zh", got)
}

func TestDetectLatinTieFallsBackToEnglish(t *testing.T) {
	assert.Equal(t, "en", detectLatin("zzz qqq xxx"))
}
