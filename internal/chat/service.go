package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	contentmodels "transferai/internal/content/models"
	dErrors "transferai/pkg/domain-errors"
	"transferai/pkg/platform/sentinel"
)

const systemPrompt = "You are a transfer counselor for California community college students. " +
	"Answer using the articulation agreement pages provided as images when they are attached. " +
	"If the agreement does not cover a course, say so instead of guessing."

// ImageStore loads stored page images.
type ImageStore interface {
	Get(ctx context.Context, filename string) (*contentmodels.Blob, error)
}

// Service answers chat requests, attaching the requested agreement pages.
type Service struct {
	responder Responder
	images    ImageStore
	logger    *slog.Logger
}

func NewService(responder Responder, images ImageStore, logger *slog.Logger) *Service {
	return &Service{responder: responder, images: images, logger: logger}
}

func (s *Service) Chat(ctx context.Context, req *Request) (string, error) {
	turns := []Turn{{Role: RoleSystem, Text: systemPrompt}}
	for _, m := range req.History {
		role := strings.ToLower(m.Role)
		if role != RoleUser && role != RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		turns = append(turns, Turn{Role: role, Text: m.Content})
	}

	images, err := s.loadImages(ctx, req.ImageFilenames)
	if err != nil {
		return "", err
	}
	turns = append(turns, Turn{Role: RoleUser, Text: req.NewMessage, Images: images})

	reply, err := s.responder.Reply(ctx, turns)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "chat service unavailable")
	}
	return reply, nil
}

// loadImages skips files that are missing or not images.
func (s *Service) loadImages(ctx context.Context, filenames []string) ([][]byte, error) {
	var images [][]byte
	for _, name := range filenames {
		blob, err := s.images.Get(ctx, name)
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "chat image not found", "filename", name)
			continue
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load images")
		}
		if !strings.HasPrefix(blob.ContentType, "image/") {
			s.logger.WarnContext(ctx, "chat attachment is not an image", "filename", name, "content_type", blob.ContentType)
			continue
		}
		images = append(images, blob.Data)
	}
	return images, nil
}
