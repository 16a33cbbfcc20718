package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"cylindercore/internal/cache"
)

// maxBodyBytes bounds request bodies read by the API.
const maxBodyBytes = 1 << 20

// idempotentRecord is the cached outcome of a keyed POST.
type idempotentRecord struct {
	Hash        string `json:"hash"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// captureWriter buffers a response so it can be cached before it is sent.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(b)
}

type idempotency struct {
	cache cache.Cache
	ttl   time.Duration
	log   logrus.FieldLogger
}

// handler replays the stored response of a POST carrying an Idempotency-Key
// when the body is unchanged. A different body under the same key, or a
// request still in flight, is a conflict. Server errors are not stored so
// the client can retry.
func (i *idempotency) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
		if r.Method != http.MethodPost || key == "" || i.cache == nil {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			fail(w, badRequest("read request body: "+err.Error()))
			return
		}
		if len(body) > maxBodyBytes {
			fail(w, &apiError{status: http.StatusRequestEntityTooLarge, Code: "BAD_REQUEST", Message: "request body too large"})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		hash := hex.EncodeToString(sum[:])
		cacheKey := "idem:" + actorFrom(r.Context()).ID + ":" + r.Method + ":" + r.URL.Path + ":" + key
		ctx := r.Context()

		claim, _ := json.Marshal(idempotentRecord{Hash: hash, Pending: true})
		won, err := i.cache.SetNX(ctx, cacheKey, claim, i.ttl)
		if err != nil {
			i.log.WithError(err).Warn("idempotency cache unavailable")
			fail(w, &apiError{status: http.StatusServiceUnavailable, Code: "INTERNAL_ERROR", Message: "idempotency store unavailable", Retryable: true})
			return
		}
		if !won {
			i.replay(w, r, cacheKey, hash)
			return
		}

		capture := &captureWriter{header: make(http.Header)}
		next.ServeHTTP(capture, r)
		status := capture.status
		if status == 0 {
			status = http.StatusOK
		}
		if status >= 500 {
			if err := i.cache.Delete(ctx, cacheKey); err != nil {
				i.log.WithError(err).Warn("release idempotency key")
			}
		} else {
			rec, _ := json.Marshal(idempotentRecord{Hash: hash, Status: status, ContentType: capture.header.Get("Content-Type"), Body: capture.body.Bytes()})
			if err := i.cache.Set(ctx, cacheKey, rec, i.ttl); err != nil {
				i.log.WithError(err).Warn("store idempotent response")
			}
		}
		for k, v := range capture.header {
			w.Header()[k] = v
		}
		w.WriteHeader(status)
		_, _ = w.Write(capture.body.Bytes())
	})
}

func (i *idempotency) replay(w http.ResponseWriter, r *http.Request, cacheKey, hash string) {
	raw, err := i.cache.Get(r.Context(), cacheKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		fail(w, &apiError{status: http.StatusConflict, Code: "IDEMPOTENCY_CONFLICT", Message: "idempotency key expired while in use, retry", Retryable: true})
		return
	}
	var rec idempotentRecord
	if err == nil {
		err = json.Unmarshal(raw, &rec)
	}
	if err != nil {
		i.log.WithError(err).Warn("load idempotent response")
		fail(w, &apiError{status: http.StatusServiceUnavailable, Code: "INTERNAL_ERROR", Message: "idempotency store unavailable", Retryable: true})
		return
	}
	switch {
	case rec.Hash != hash:
		fail(w, &apiError{status: http.StatusConflict, Code: "IDEMPOTENCY_MISMATCH", Message: "idempotency key was used with a different request body"})
	case rec.Pending:
		fail(w, &apiError{status: http.StatusConflict, Code: "IDEMPOTENCY_CONFLICT", Message: "a request with this idempotency key is in progress", Retryable: true})
	default:
		if rec.ContentType != "" {
			w.Header().Set("Content-Type", rec.ContentType)
		}
		w.Header().Set(HeaderReplayed, "true")
		w.WriteHeader(rec.Status)
		_, _ = w.Write(rec.Body)
	}
}
