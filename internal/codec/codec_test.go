package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicelingua/voicelingua/internal/domain"
)

func floatPtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }

func sampleRecord() *Record {
	return &Record{
		JobID:      "9fa45ad0-a902-4319-b4d0-bd2b246dd46d",
		JobType:    domain.JobTypeAudio,
		CreatedAt:  time.Date(2025, 1, 27, 9, 14, 25, 0, time.UTC),
		CompletedAt: timePtr(time.Date(2025, 1, 27, 9, 14, 41, 0, time.UTC)),
		Accuracy:   floatPtr(0.803),
		ExternalID: "1",
		Translations: map[string]map[domain.SourceType]Translation{
			"en": {
				domain.SourceAudio: {TranslatedText: "Tilly loved her red balloon.", Confidence: floatPtr(0.95)},
				domain.SourceText:  {TranslatedText: "Tilly, loved her red balloon.", Confidence: floatPtr(0.98)},
			},
			"zh": {
				domain.SourceAudio: {TranslatedText: "蒂莉喜欢她的红气球。", Confidence: floatPtr(0.92)},
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	r := sampleRecord()

	blob, err := Encode(r)
	require.NoError(t, err)
	require.NotEmpty(t, blob)
	assert.Equal(t, Version, blob[0])

	decoded, err := Decode(blob)
	require.NoError(t, err)

	// The id survives only as its 8-character prefix.
	assert.Equal(t, "9fa45ad0", decoded.JobID)
	assert.Equal(t, r.JobType, decoded.JobType)
	assert.True(t, r.CreatedAt.Equal(decoded.CreatedAt))
	require.NotNil(t, decoded.CompletedAt)
	assert.True(t, r.CompletedAt.Equal(*decoded.CompletedAt))
	require.NotNil(t, decoded.Accuracy)
	assert.Equal(t, *r.Accuracy, *decoded.Accuracy)
	assert.Equal(t, r.ExternalID, decoded.ExternalID)
	assert.Equal(t, r.Translations, decoded.Translations)
}

func TestRoundTripSubSecondAndZoneLoss(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	r := sampleRecord()
	r.CreatedAt = time.Date(2025, 6, 1, 20, 30, 15, 987654321, loc)

	blob, err := Encode(r)
	require.NoError(t, err)
	decoded, err := Decode(blob)
	require.NoError(t, err)

	// Whole-second UTC is all that survives.
	want := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)
	assert.True(t, want.Equal(decoded.CreatedAt), "got %v", decoded.CreatedAt)
}

func TestEncodeDeterministic(t *testing.T) {
	a, err := Encode(sampleRecord())
	require.NoError(t, err)
	b, err := Encode(sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmptyIndistinguishableFromAbsent(t *testing.T) {
	withEmpty := sampleRecord()
	withEmpty.ExternalID = ""
	withEmpty.Accuracy = nil
	withEmpty.CompletedAt = nil

	blob, err := Encode(withEmpty)
	require.NoError(t, err)
	decoded, err := Decode(blob)
	require.NoError(t, err)

	assert.Empty(t, decoded.ExternalID)
	assert.Nil(t, decoded.Accuracy)
	assert.Nil(t, decoded.CompletedAt)
}

func TestEmptyTranslationEntriesDropped(t *testing.T) {
	r := sampleRecord()
	r.Translations["ja"] = map[domain.SourceType]Translation{
		domain.SourceAudio: {TranslatedText: ""},
	}

	blob, err := Encode(r)
	require.NoError(t, err)
	decoded, err := Decode(blob)
	require.NoError(t, err)

	// An entry whose fields all pruned away never reappears.
	_, ok := decoded.Translations["ja"]
	assert.False(t, ok)
	assert.Len(t, decoded.Translations, 2)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyArtifact)

	_, err = Decode([]byte{0x7f, 0x00})
	assert.ErrorIs(t, err, ErrUnknownVersion)

	_, err = Decode([]byte{Version, 0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}

func TestShortIDKeptAsIs(t *testing.T) {
	r := sampleRecord()
	r.JobID = "abc123"

	blob, err := Encode(r)
	require.NoError(t, err)
	decoded, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, "abc123", decoded.JobID)
}

func TestCompactTimeWindow(t *testing.T) {
	testCases := []struct {
		name string
		in   time.Time
	}{
		{name: "window start", in: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "window end", in: time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := expandTime(compactTime(tc.in))
			require.NoError(t, err)
			assert.True(t, tc.in.Equal(out), "got %v", out)
		})
	}
}

func TestExpandTimeRejectsGarbage(t *testing.T) {
	_, err := expandTime("not-a-time")
	assert.Error(t, err)
}
