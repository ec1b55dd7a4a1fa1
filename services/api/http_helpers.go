package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"gamehost/services/feedback"
	"gamehost/services/games"
)

var errBodyTooLarge = errors.New("request body too large")

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondMessage(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	respondJSON(w, status, map[string]any{"error": msg})
}

// statusFor maps a store or feedback error to a status code and a message
// that is safe to show to the uploader.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "upload is too large"
	case errors.Is(err, feedback.ErrEmptyText):
		return http.StatusBadRequest, "id and text are required"
	case errors.Is(err, feedback.ErrInvalidIdentifier):
		return http.StatusBadRequest, "id is not a valid game identifier"
	}

	switch games.KindOf(err) {
	case games.KindMissingIdentifier:
		return http.StatusBadRequest, "id is required"
	case games.KindInvalidIdentifier:
		return http.StatusBadRequest, "id is not a valid game identifier"
	case games.KindInvalidArchive:
		return http.StatusBadRequest, "the provided file is not a valid zip archive"
	case games.KindNotFoundArtifact, games.KindNotFound:
		return http.StatusNotFound, "game not found"
	default:
		return http.StatusInternalServerError, "failed to store game files"
	}
}

// parseForm reads a urlencoded or multipart body capped at limit bytes.
func parseForm(w http.ResponseWriter, r *http.Request, limit int64) error {
	if r.ContentLength > limit {
		return errBodyTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := r.ParseMultipartForm(formMemory)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errBodyTooLarge
	}
	return fmt.Errorf("parse form: %w", err)
}

// formFile returns the bytes of an uploaded file part. A missing or empty
// part yields nil.
func formFile(r *http.Request, field string) ([]byte, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, nil
	}
	f, err := r.MultipartForm.File[field][0].Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// sideEffectContext outlives the request so mirror and bus calls are not
// cut short when the client disconnects.
func sideEffectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
}
