package domain

import (
	"context"
	"io"
	"iter"
)

// StreamProvider abstracts a streaming chat/LLM provider. A provider is
// stateless with respect to credentials: the key to use is passed on every
// call so the caller owns rotation.
type StreamProvider interface {
	// Stream opens a generation call and yields text deltas as they arrive.
	// Breaking out of the range loop must release the underlying stream.
	Stream(ctx context.Context, credential string, req GenerateRequest) iter.Seq2[string, error]
}

// DocumentUploader uploads large documents so they can be referenced by a
// FilePart instead of being inlined.
type DocumentUploader interface {
	UploadDocument(ctx context.Context, credential string, doc Document) (FilePart, error)
}

type GenerateRequest struct {
	SystemInstruction string
	History           []Message
	Payload           []Part
}

// Message is a history window entry in the provider's role vocabulary.
type Message struct {
	Role  ModelRole
	Parts []Part
}

type ModelRole string

const (
	ModelRoleUser  ModelRole = "user"
	ModelRoleModel ModelRole = "model"
)

// Part is one element of a message: exactly one of Text, Image or File is set.
type Part struct {
	Text  string
	Image *ImagePart
	File  *FilePart
}

type ImagePart struct {
	MIMEType string
	Data     []byte
}

type FilePart struct {
	URI      string
	MIMEType string
}

func TextPart(text string) Part { return Part{Text: text} }

// Document is an attachment waiting to be uploaded.
type Document struct {
	Name     string
	MIMEType string
	Body     io.Reader
}

// HistoryWindow translates persisted turns into provider messages.
func HistoryWindow(turns []Turn) []Message {
	window := make([]Message, 0, len(turns))
	for _, t := range turns {
		role := ModelRoleUser
		if t.Role == AssistantRole {
			role = ModelRoleModel
		}
		window = append(window, Message{Role: role, Parts: []Part{TextPart(t.Content)}})
	}
	return window
}
