package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/roberta039/Gym-Trainer/domain"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

const (
	DefaultModel              = "gemini-2.5-flash"
	DefaultSafetyThreshold    = "BLOCK_NONE"
	DefaultUploadPollInterval = time.Second
)

type GeminiConfig struct {
	Model              string
	SafetyThreshold    string
	UploadPollInterval time.Duration
}

// GeminiClient talks to the Gemini API. One genai.Client is kept per API key
// so rotating keys does not rebuild transports.
type GeminiClient struct {
	cfg GeminiConfig

	mu      sync.Mutex
	clients map[string]*genai.Client
}

func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SafetyThreshold == "" {
		cfg.SafetyThreshold = DefaultSafetyThreshold
	}
	if cfg.UploadPollInterval <= 0 {
		cfg.UploadPollInterval = DefaultUploadPollInterval
	}
	return &GeminiClient{cfg: cfg, clients: make(map[string]*genai.Client)}
}

func (g *GeminiClient) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	g.clients[apiKey] = c
	return c, nil
}

// Stream implements domain.StreamProvider.
func (g *GeminiClient) Stream(ctx context.Context, apiKey string, req domain.GenerateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		client, err := g.client(ctx, apiKey)
		if err != nil {
			yield("", classifyError(err))
			return
		}

		contents := toContents(req.History, req.Payload)
		config := g.generateConfig(req.SystemInstruction)

		for resp, err := range client.Models.GenerateContentStream(ctx, g.cfg.Model, contents, config) {
			if err != nil {
				yield("", classifyError(fmt.Errorf("generate content stream: %w", err)))
				return
			}
			if !yield(chunkText(resp)) {
				return
			}
		}
	}
}

// UploadDocument implements domain.DocumentUploader: the document is
// submitted to the Files API and polled until it leaves the PROCESSING state.
func (g *GeminiClient) UploadDocument(ctx context.Context, apiKey string, doc domain.Document) (domain.FilePart, error) {
	client, err := g.client(ctx, apiKey)
	if err != nil {
		return domain.FilePart{}, err
	}

	file, err := client.Files.Upload(ctx, doc.Body, &genai.UploadFileConfig{
		MIMEType:    doc.MIMEType,
		DisplayName: doc.Name,
	})
	if err != nil {
		return domain.FilePart{}, fmt.Errorf("uploading %s: %w", doc.Name, err)
	}

	ticker := time.NewTicker(g.cfg.UploadPollInterval)
	defer ticker.Stop()

	for file.State == genai.FileStateProcessing {
		log.WithCtx(ctx).Debug("waiting for uploaded file", zap.String("file", file.Name))
		select {
		case <-ctx.Done():
			return domain.FilePart{}, ctx.Err()
		case <-ticker.C:
		}
		file, err = client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return domain.FilePart{}, fmt.Errorf("polling %s: %w", doc.Name, err)
		}
	}

	if file.State == genai.FileStateFailed {
		return domain.FilePart{}, fmt.Errorf("processing %s failed", doc.Name)
	}

	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = doc.MIMEType
	}
	return domain.FilePart{URI: file.URI, MIMEType: mimeType}, nil
}

func (g *GeminiClient) generateConfig(systemInstruction string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		SafetySettings: safetySettings(genai.HarmBlockThreshold(g.cfg.SafetyThreshold)),
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	return config
}

func safetySettings(threshold genai.HarmBlockThreshold) []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, len(categories))
	for i, c := range categories {
		settings[i] = &genai.SafetySetting{Category: c, Threshold: threshold}
	}
	return settings
}

func toContents(history []domain.Message, payload []domain.Part) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, msg := range history {
		contents = append(contents, &genai.Content{
			Role:  string(msg.Role),
			Parts: toParts(msg.Parts),
		})
	}
	return append(contents, &genai.Content{
		Role:  string(domain.ModelRoleUser),
		Parts: toParts(payload),
	})
}

func toParts(parts []domain.Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Image != nil:
			out = append(out, &genai.Part{InlineData: &genai.Blob{
				MIMEType: p.Image.MIMEType,
				Data:     p.Image.Data,
			}})
		case p.File != nil:
			out = append(out, &genai.Part{FileData: &genai.FileData{
				FileURI:  p.File.URI,
				MIMEType: p.File.MIMEType,
			}})
		default:
			out = append(out, &genai.Part{Text: p.Text})
		}
	}
	return out
}

// chunkText pulls the text out of one streamed response. Responses without a
// candidate (blocked prompts, trailing usage chunks) report
// domain.ErrContentExtraction so the stream keeps draining.
func chunkText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return "", domain.ErrContentExtraction
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String(), nil
}
