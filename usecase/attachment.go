package usecase

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/domain"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

const pdfMIMEType = "application/pdf"

var imageMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// buildPayload assembles the parts of the new request: an optional
// attachment introduced by the attachment prompt, then the user's text.
func (s *ChatService) buildPayload(ctx context.Context, in SendInput) []domain.Part {
	parts := s.attachmentParts(ctx, in.Attachment)
	return append(parts, domain.TextPart(in.Text))
}

// attachmentParts turns an attachment into request parts. Images are
// inlined, PDFs are uploaded first. Any failure is reported as a notice and
// the request goes on without the attachment.
func (s *ChatService) attachmentParts(ctx context.Context, a *Attachment) []domain.Part {
	if a == nil || len(a.Data) == 0 {
		return nil
	}

	mimeType := attachmentMIMEType(a)
	var media domain.Part

	switch {
	case imageMIMETypes[mimeType]:
		media = domain.Part{Image: &domain.ImagePart{MIMEType: mimeType, Data: a.Data}}
	case mimeType == pdfMIMEType:
		file, err := s.upload(ctx, a, mimeType)
		if err != nil {
			log.WithCtx(ctx).Warn("attachment upload failed", zap.String("name", a.Name), zap.Error(err))
			s.publish(ctx, domain.NoticeAttachmentFailed, fmt.Sprintf("Could not process %s, continuing without it.", a.Name))
			return nil
		}
		media = domain.Part{File: &file}
	default:
		log.WithCtx(ctx).Warn("unsupported attachment", zap.String("name", a.Name), zap.String("mime_type", mimeType))
		s.publish(ctx, domain.NoticeAttachmentFailed, fmt.Sprintf("%s is not a supported image or PDF, continuing without it.", a.Name))
		return nil
	}

	return []domain.Part{domain.TextPart(s.settings.AttachmentPrompt), media}
}

func (s *ChatService) upload(ctx context.Context, a *Attachment, mimeType string) (domain.FilePart, error) {
	if s.uploader == nil {
		return domain.FilePart{}, fmt.Errorf("document upload is not configured")
	}
	_, key := s.pool.Current()
	return s.uploader.UploadDocument(ctx, key, domain.Document{
		Name:     a.Name,
		MIMEType: mimeType,
		Body:     bytes.NewReader(a.Data),
	})
}

func attachmentMIMEType(a *Attachment) string {
	declared := a.MIMEType
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
		declared = mediaType
	}
	if declared == "" || declared == "application/octet-stream" {
		declared, _, _ = mime.ParseMediaType(http.DetectContentType(a.Data))
	}
	return declared
}
