package http

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/switix/bookstore/internal/domain"
)

const idempotencyKeyHeader = "Idempotency-Key"

const idempotencyTTL = 24 * time.Hour

// withIdempotency добавляет поддержку заголовка Idempotency-Key:
// повторный запрос с тем же ключом и телом получает сохранённый ответ,
// тот же ключ с другим телом отклоняется.
func (h *Handler) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyKeyHeader)
		if key == "" || h.idempotency == nil {
			next(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		requestHash := hashRequest(r.Method, r.URL.Path, body)

		_, err = h.idempotency.CreateProcessing(key, requestHash, time.Now().UTC().Add(idempotencyTTL))
		if err != nil {
			h.replayOrReject(w, key, err)
			return
		}

		rec := newResponseRecorder(w)
		next(rec, r)

		if rec.status >= http.StatusOK && rec.status < http.StatusBadRequest {
			err = h.idempotency.MarkDone(key, rec.body.Bytes(), rec.status)
		} else {
			err = h.idempotency.MarkFailed(key, rec.body.Bytes(), rec.status)
		}
		if err != nil {
			h.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency result")
		}
	}
}

func (h *Handler) replayOrReject(w http.ResponseWriter, key string, err error) {
	if errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		h.writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused",
			"idempotency key was already used with a different request")
		return
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		h.logger.WithError(err).WithField("idempotency_key", key).Error("idempotency lookup failed")
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	record, getErr := h.idempotency.Get(key)
	if getErr != nil {
		h.logger.WithError(getErr).WithField("idempotency_key", key).Error("idempotency record lookup failed")
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	if record.Status == domain.IdempotencyStatusProcessing {
		h.writeError(w, http.StatusConflict, "request_in_progress",
			"request with this idempotency key is still being processed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotency-Replayed", "true")
	w.WriteHeader(record.HTTPStatus)
	_, _ = w.Write(record.ResponseBody)
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{':'})
	sum.Write([]byte(path))
	sum.Write([]byte{':'})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// responseRecorder дублирует ответ в буфер для сохранения в idempotency store.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
