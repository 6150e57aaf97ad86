package speech

import (
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
)

func TestRecognizeRequest(t *testing.T) {
	req := recognizeRequest([]byte{1, 2}, 0, "ro-RO")

	assert.Equal(t, speechpb.RecognitionConfig_LINEAR16, req.GetConfig().GetEncoding())
	assert.Equal(t, int32(DefaultSampleRate), req.GetConfig().GetSampleRateHertz())
	assert.Equal(t, "ro-RO", req.GetConfig().GetLanguageCode())
	assert.Equal(t, []byte{1, 2}, req.GetAudio().GetContent())
}

func TestRecognizeRequest_SampleRate(t *testing.T) {
	tests := []struct {
		name string
		rate int
		want int32
	}{
		{name: "explicit", rate: 44100, want: 44100},
		{name: "highest supported", rate: MaxSampleRate, want: MaxSampleRate},
		{name: "above supported falls back", rate: 96000, want: DefaultSampleRate},
		{name: "negative falls back", rate: -8000, want: DefaultSampleRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := recognizeRequest(nil, tt.rate, "ro-RO")
			assert.Equal(t, tt.want, req.GetConfig().GetSampleRateHertz())
		})
	}
}

func TestJoinTranscripts(t *testing.T) {
	resp := &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " plan pentru "}, {Transcript: "ignored"}}},
		{},
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "picioare"}}},
	}}

	assert.Equal(t, "plan pentru picioare", joinTranscripts(resp))
	assert.Empty(t, joinTranscripts(nil))
}
