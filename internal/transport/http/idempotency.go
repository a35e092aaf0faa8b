package http

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

const (
	// HeaderIdempotencyKey передаёт клиентский ключ идемпотентности команды.
	HeaderIdempotencyKey = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
)

// WithIdempotency оборачивает команду: повтор запроса с тем же ключом
// получает сохранённый ответ вместо повторного исполнения. Ключ,
// переиспользованный с другим телом, отклоняется. Запрос без ключа
// выполняется как обычно.
func WithIdempotency(repo domain.IdempotencyRepository, logger *log.Entry) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.WithField("component", "http-idempotency")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if repo == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := buildRequestHash(r.Method, r.URL.Path, body)
			record, err := repo.CreateProcessing(key, requestHash, time.Now().UTC().Add(idempotencyTTL))
			if err != nil {
				// После серверной ошибки повтор с тем же ключом исполняет
				// команду заново, а не отдаёт закешированный сбой.
				retryAfterFailure := errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) &&
					record.Status == domain.IdempotencyStatusFailed
				if !retryAfterFailure {
					replayIdempotency(w, err, record)
					return
				}
			}

			recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.status >= http.StatusInternalServerError {
				// Серверные ошибки не кешируем: клиент вправе повторить
				// команду с тем же ключом.
				if err := repo.MarkFailed(key, recorder.body.Bytes(), recorder.status); err != nil {
					logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store failed response")
				}
				return
			}
			if err := repo.MarkDone(key, recorder.body.Bytes(), recorder.status); err != nil {
				logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
			}
		})
	}
}

// replayIdempotency обрабатывает конфликт при создании processing-записи.
func replayIdempotency(w http.ResponseWriter, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeError(w, http.StatusUnprocessableEntity, "idempotency_mismatch",
			"idempotency key is already used with different request payload")

	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			if len(record.ResponseBody) == 0 {
				writeError(w, http.StatusInternalServerError, "internal_error", "idempotency cache is empty")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(record.HTTPStatus)
			_, _ = w.Write(record.ResponseBody)

		case domain.IdempotencyStatusProcessing:
			writeError(w, http.StatusConflict, "request_in_flight",
				"request with the same idempotency key is already processing")

		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected idempotency state")
		}

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to initialize idempotency request")
	}
}

func buildRequestHash(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{0})
	sum.Write([]byte(path))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// responseRecorder дублирует ответ в буфер для idempotency-кеша.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}
