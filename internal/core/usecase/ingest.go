package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docverify/internal/core/domain"
	"github.com/kirillkom/docverify/internal/core/ports"
)

// IngestSubmissionUseCase stores an asynchronous submission and queues it for
// the worker.
type IngestSubmissionUseCase struct {
	repo    ports.SubmissionRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestSubmissionUseCase(
	repo ports.SubmissionRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestSubmissionUseCase {
	return &IngestSubmissionUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *IngestSubmissionUseCase) Enqueue(ctx context.Context, in ports.SubmitInput) (*domain.Submission, error) {
	subject := strings.TrimSpace(in.Session.SubjectID)
	if subject == "" {
		return nil, domain.WrapError(domain.ErrMissingIdentity, "enqueue submission", errors.New("subject id is required"))
	}
	if len(in.Front.Data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue submission", errors.New("front side is required"))
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	sub := &domain.Submission{
		ID:           id,
		SubjectID:    subject,
		DeclaredKind: in.DeclaredKind,
		FrontName:    in.Front.Filename,
		FrontMIME:    in.Front.MIMEType,
		State:        domain.SubmissionQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	sub.FrontKey = storageKey(id, SideFront, in.Front.Filename)
	if err := uc.storage.Save(ctx, sub.FrontKey, bytes.NewReader(in.Front.Data)); err != nil {
		return nil, fmt.Errorf("save front side: %w", err)
	}
	if in.Back != nil && len(in.Back.Data) > 0 {
		sub.BackKey = storageKey(id, SideBack, in.Back.Filename)
		sub.BackName = in.Back.Filename
		sub.BackMIME = in.Back.MIMEType
		if err := uc.storage.Save(ctx, sub.BackKey, bytes.NewReader(in.Back.Data)); err != nil {
			uc.discard(ctx, sub.FrontKey)
			return nil, fmt.Errorf("save back side: %w", err)
		}
	}

	if err := uc.repo.Create(ctx, sub); err != nil {
		uc.discard(ctx, sub.FrontKey, sub.BackKey)
		return nil, fmt.Errorf("create submission record: %w", err)
	}

	if err := uc.queue.PublishSubmissionQueued(ctx, sub.ID); err != nil {
		// The record stays for read-back but no worker will ever pick it up.
		if markErr := uc.repo.UpdateState(ctx, sub.ID, domain.SubmissionFailed, err.Error()); markErr != nil {
			slog.Error("submission_mark_failed_error", "submission_id", sub.ID, "error", markErr)
		}
		return nil, fmt.Errorf("publish submission event: %w", err)
	}

	return sub, nil
}

func (uc *IngestSubmissionUseCase) discard(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := uc.storage.Delete(ctx, key); err != nil {
			slog.Warn("submission_cleanup_failed", "key", key, "error", err)
		}
	}
}

func storageKey(id, side, filename string) string {
	return fmt.Sprintf("%s_%s_%s", id, side, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
