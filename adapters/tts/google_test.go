package tts

import (
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/stretchr/testify/assert"
)

func TestSynthesizeRequest(t *testing.T) {
	req := synthesizeRequest("Hold the plank", "ro-RO")

	assert.Equal(t, "Hold the plank", req.GetInput().GetText())
	assert.Equal(t, "ro-RO", req.GetVoice().GetLanguageCode())
	assert.Equal(t, texttospeechpb.AudioEncoding_MP3, req.GetAudioConfig().GetAudioEncoding())
}
