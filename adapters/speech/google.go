package speech

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

const (
	DefaultLanguage   = "ro-RO"
	DefaultSampleRate = 16000
	// MaxSampleRate is the highest LINEAR16 rate Speech-to-Text accepts.
	MaxSampleRate = 48000
)

type GoogleSpeech struct {
	client   *speech.Client
	language string
}

// NewGoogleSpeech connects to Cloud Speech-to-Text using application default
// credentials.
func NewGoogleSpeech(ctx context.Context, language string) (*GoogleSpeech, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating Google speech client: %w", err)
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &GoogleSpeech{
		client:   client,
		language: language,
	}, nil
}

// Transcribe recognizes a short LINEAR16 clip and joins the best alternative
// of every result.
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	resp, err := g.client.Recognize(ctx, recognizeRequest(audio, sampleRate, g.language))
	if err != nil {
		return "", fmt.Errorf("recognizing speech: %w", err)
	}
	return joinTranscripts(resp), nil
}

func (g *GoogleSpeech) Close() error {
	return g.client.Close()
}

func recognizeRequest(audio []byte, sampleRate int, language string) *speechpb.RecognizeRequest {
	if sampleRate <= 0 || sampleRate > MaxSampleRate {
		sampleRate = DefaultSampleRate
	}
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(sampleRate),
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}
}

func joinTranscripts(resp *speechpb.RecognizeResponse) string {
	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
