package api

import (
	"errors"
	"net/http"

	"gamehost/services/games"
)

type uploadForm struct {
	ID      string
	Archive []byte
	Image   []byte
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	a.handleStore(w, r, "upload", games.ModeCreate, gameUploadedTopic, "upload complete")
}

func (a *API) handleReupload(w http.ResponseWriter, r *http.Request) {
	a.handleStore(w, r, "reupload", games.ModeReplace, gameReuploadedTopic, "reupload complete")
}

func (a *API) handleStore(w http.ResponseWriter, r *http.Request, op string, mode games.Mode, topic, done string) {
	form, ok := a.readUploadForm(w, r, op)
	if !ok {
		return
	}

	unlock := a.locks.Lock(form.ID)
	defer unlock()

	res, err := a.store.Games.CreateOrReplace(r.Context(), form.ID, form.Archive, form.Image, mode)
	if err != nil {
		a.fail(w, r, op, form.ID, err)
		return
	}
	a.metrics.mutation(op, "ok")
	if res.Extracted {
		a.metrics.extracted.Observe(float64(res.Stats.Bytes))
	}

	a.logger.Info().
		Str("op", op).
		Str("mode", mode.String()).
		Str("game_id", form.ID).
		Bool("created", res.Created).
		Bool("extracted", res.Extracted).
		Bool("image_written", res.ImageWritten).
		Int("files", res.Stats.Files).
		Int64("bytes", res.Stats.Bytes).
		Msg("game stored")

	var mirroredArchive []byte
	if res.Extracted {
		mirroredArchive = form.Archive
	}
	var mirroredImage []byte
	if res.ImageWritten {
		mirroredImage = form.Image
	}
	a.afterStore(r.Context(), topic, form.ID, res, mirroredArchive, mirroredImage)

	respondMessage(w, done)
}

func (a *API) readUploadForm(w http.ResponseWriter, r *http.Request, op string) (uploadForm, bool) {
	if err := parseForm(w, r, a.config.MaxUploadBytes); err != nil {
		a.rejectForm(w, op, err)
		return uploadForm{}, false
	}

	form := uploadForm{ID: r.FormValue("id")}
	if err := games.ValidateID(form.ID); err != nil {
		a.fail(w, r, op, form.ID, err)
		return uploadForm{}, false
	}

	var err error
	if form.Archive, err = formFile(r, "zip"); err != nil {
		a.fail(w, r, op, form.ID, err)
		return uploadForm{}, false
	}
	if form.Image, err = formFile(r, "img"); err != nil {
		a.fail(w, r, op, form.ID, err)
		return uploadForm{}, false
	}
	return form, true
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "delete"
	if err := parseForm(w, r, a.config.MaxUploadBytes); err != nil {
		a.rejectForm(w, op, err)
		return
	}
	id := r.FormValue("id")

	unlock := a.locks.Lock(id)
	defer unlock()

	existed, err := a.store.Games.Delete(r.Context(), id)
	if err != nil {
		a.fail(w, r, op, id, err)
		return
	}
	a.metrics.mutation(op, "ok")
	a.logger.Info().Str("op", op).Str("game_id", id).Bool("existed", existed).Msg("game deleted")

	a.afterDelete(r.Context(), id, existed)

	if existed {
		respondMessage(w, "delete complete")
		return
	}
	respondMessage(w, "no files existed for this game; delete attempted anyway")
}

func (a *API) handleFeedback(w http.ResponseWriter, r *http.Request) {
	const op = "feedback"
	if err := parseForm(w, r, a.config.MaxUploadBytes); err != nil {
		a.rejectForm(w, op, err)
		return
	}
	id := r.FormValue("id")
	text := r.FormValue("text")
	if id == "" || text == "" {
		a.metrics.mutation(op, "client_error")
		respondError(w, http.StatusBadRequest, "id and text are required")
		return
	}

	if err := a.store.Feedback.Append(r.Context(), id, text); err != nil {
		a.fail(w, r, op, id, err)
		return
	}
	a.metrics.mutation(op, "ok")
	a.afterFeedback(r.Context(), id, text)

	respondMessage(w, "feedback sent")
}

func (a *API) rejectForm(w http.ResponseWriter, op string, err error) {
	a.metrics.mutation(op, "client_error")
	if errors.Is(err, errBodyTooLarge) {
		status, msg := statusFor(err)
		respondError(w, status, msg)
		return
	}
	a.logger.Debug().Str("op", op).Err(err).Msg("unreadable form")
	respondError(w, http.StatusBadRequest, "invalid form body")
}

// fail logs the full error and answers with a message that never contains
// filesystem paths.
func (a *API) fail(w http.ResponseWriter, r *http.Request, op, id string, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError && op == "feedback" {
		msg = "failed to save feedback"
	}
	result := "client_error"
	event := a.logger.Warn()
	if status >= http.StatusInternalServerError {
		result = "server_error"
		event = a.logger.Error()
	}
	a.metrics.mutation(op, result)
	event.
		Str("op", op).
		Str("game_id", id).
		Str("request_id", requestID(r)).
		Str("kind", games.KindOf(err).String()).
		Err(err).
		Msg("request failed")
	respondError(w, status, msg)
}
