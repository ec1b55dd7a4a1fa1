package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"gamehost/services/games"
)

// GameEvent is published after an upload, reupload or delete.
type GameEvent struct {
	ID             string    `json:"id"`
	Created        bool      `json:"created,omitempty"`
	Extracted      bool      `json:"extracted,omitempty"`
	ImageWritten   bool      `json:"image_written,omitempty"`
	ArchiveIgnored bool      `json:"archive_ignored,omitempty"`
	Files          int       `json:"files,omitempty"`
	Bytes          int64     `json:"bytes,omitempty"`
	Existed        *bool     `json:"existed,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// FeedbackEvent is published after a feedback entry is appended.
type FeedbackEvent struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (a *API) afterStore(ctx context.Context, topic, id string, res games.Result, archive, image []byte) {
	ctx, cancel := sideEffectContext(ctx)
	defer cancel()

	if a.store.Mirror != nil && (archive != nil || image != nil) {
		if err := a.store.Mirror.PutArtifact(ctx, id, archive, image); err != nil {
			a.logger.Error().Str("game_id", id).Err(err).Msg("mirror artifact")
		}
	}

	a.publish(ctx, topic, GameEvent{
		ID:             id,
		Created:        res.Created,
		Extracted:      res.Extracted,
		ImageWritten:   res.ImageWritten,
		ArchiveIgnored: res.ArchiveIgnored != nil,
		Files:          res.Stats.Files,
		Bytes:          res.Stats.Bytes,
		OccurredAt:     time.Now().UTC(),
	})
}

func (a *API) afterDelete(ctx context.Context, id string, existed bool) {
	ctx, cancel := sideEffectContext(ctx)
	defer cancel()

	if a.store.Mirror != nil {
		if err := a.store.Mirror.DeleteArtifact(ctx, id); err != nil {
			a.logger.Error().Str("game_id", id).Err(err).Msg("delete mirrored artifact")
		}
	}

	a.publish(ctx, gameDeletedTopic, GameEvent{
		ID:         id,
		Existed:    &existed,
		OccurredAt: time.Now().UTC(),
	})
}

func (a *API) afterFeedback(ctx context.Context, id, text string) {
	ctx, cancel := sideEffectContext(ctx)
	defer cancel()

	a.publish(ctx, feedbackSubmittedTopic, FeedbackEvent{
		ID:         id,
		Text:       text,
		OccurredAt: time.Now().UTC(),
	})
}

func (a *API) publish(ctx context.Context, subject string, v any) {
	if a.store.Bus == nil || subject == "" {
		return
	}
	if err := a.store.Bus.Publish(ctx, subject, v); err != nil {
		a.logger.Error().Str("subject", subject).Err(err).Msg("publish event")
	}
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
