package messages

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParts_MarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		parts Parts
		want  string
	}{
		{
			name:  "nil parts",
			parts: nil,
			want:  "null",
		},
		{
			name:  "single text part",
			parts: Parts{Text("hello world")},
			want:  `[{"type":"text","text":"hello world"}]`,
		},
		{
			name:  "image with detail",
			parts: Parts{ImagePart{URL: "http://example.com/image.jpg", Detail: "low"}},
			want:  `[{"type":"image","image_url":"http://example.com/image.jpg","detail":"low"}]`,
		},
		{
			name:  "audio part encodes base64",
			parts: Parts{Audio([]byte("test audio data"), "mp3")},
			want:  `[{"type":"audio","input_audio":{"data":"dGVzdCBhdWRpbyBkYXRh","format":"mp3"}}]`,
		},
		{
			name:  "file link",
			parts: Parts{FileLink("gs://bucket/report.pdf", "application/pdf")},
			want:  `[{"type":"file_link","uri":"gs://bucket/report.pdf","mime_type":"application/pdf"}]`,
		},
		{
			name:  "redacted reasoning",
			parts: Parts{RedactedReasoning("sig")},
			want:  `[{"type":"reasoning","signature":"sig","redacted":true}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.parts)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestParts_UnmarshalJSON(t *testing.T) {
	t.Run("mixed parts keep order and types", func(t *testing.T) {
		input := `[
			{"type":"text","text":"look at this"},
			{"type":"image","image_url":"data:image/png;base64,AAAA","mime_type":"image/png"},
			{"type":"reasoning","content":"thinking about it","signature":"abc"}
		]`
		var parts Parts
		require.NoError(t, json.Unmarshal([]byte(input), &parts))
		require.Len(t, parts, 3)

		assert.Equal(t, Text("look at this"), parts[0])
		img, ok := parts[1].(ImagePart)
		require.True(t, ok)
		assert.Equal(t, "image/png", img.MimeType)
		rp, ok := parts[2].(ReasoningPart)
		require.True(t, ok)
		assert.Equal(t, "thinking about it", rp.Content)
		assert.False(t, rp.IsRedacted())
	})

	t.Run("unknown part type", func(t *testing.T) {
		var parts Parts
		err := json.Unmarshal([]byte(`[{"type":"video","url":"x"}]`), &parts)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown part type "video"`)
	})

	t.Run("redacted reasoning without signature is rejected", func(t *testing.T) {
		var parts Parts
		err := json.Unmarshal([]byte(`[{"type":"reasoning","redacted":true}]`), &parts)
		require.Error(t, err)
	})

	t.Run("audio with bad base64", func(t *testing.T) {
		var parts Parts
		err := json.Unmarshal([]byte(`[{"type":"audio","input_audio":{"data":"!!!","format":"wav"}}]`), &parts)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid base64")
	})

	t.Run("not an array", func(t *testing.T) {
		var parts Parts
		require.Error(t, json.Unmarshal([]byte(`{"type":"text"}`), &parts))
	})
}

func TestReasoningPart_IsRedacted(t *testing.T) {
	assert.True(t, ReasoningPart{Signature: "sig"}.IsRedacted(), "signature without content is redacted")
	assert.True(t, RedactedReasoning("sig").IsRedacted())
	assert.False(t, Reasoning("visible", "sig").IsRedacted())
	assert.False(t, ReasoningPart{}.IsRedacted())

	assert.Error(t, ReasoningPart{Redacted: true}.Validate())
	assert.NoError(t, RedactedReasoning("sig").Validate())
}

func TestPart_Type(t *testing.T) {
	assert.Equal(t, PartText, Text("").Type())
	assert.Equal(t, PartImage, Image("").Type())
	assert.Equal(t, PartAudio, Audio(nil, "").Type())
	assert.Equal(t, PartFileLink, FileLink("", "").Type())
	assert.Equal(t, PartReasoning, Reasoning("", "").Type())
}
