package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/snaplate/backend/internal/capture"
	"github.com/snaplate/backend/internal/logging"
)

const multipartMemory = 8 << 20

type CaptureHandler struct {
	orch     *capture.Orchestrator
	language func(ctx context.Context) string
	wait     capture.WaitPolicy
	logger   *zap.SugaredLogger
}

// NewCaptureHandler serves the orchestration state. language supplies the
// target language when a request does not name one.
func NewCaptureHandler(orch *capture.Orchestrator, language func(ctx context.Context) string, wait capture.WaitPolicy, logger *zap.SugaredLogger) *CaptureHandler {
	return &CaptureHandler{orch: orch, language: language, wait: wait, logger: logging.OrNop(logger)}
}

type startResponse struct {
	Generation uint64        `json:"generation"`
	State      capture.State `json:"state"`
}

// Create starts a capture from the uploaded image: a multipart field named
// "image", or the raw request body.
func (h *CaptureHandler) Create(w http.ResponseWriter, r *http.Request) {
	data, lang, err := readUpload(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, "image too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid upload", http.StatusBadRequest)
		return
	}
	if lang == "" {
		lang = h.language(r.Context())
	}

	gen, err := h.orch.Capture(r.Context(), capture.BytesSource(data), lang)
	if err != nil {
		jsonError(w, "capture unavailable", http.StatusServiceUnavailable)
		return
	}
	h.logger.Infow("capture submitted", "generation", gen, "target_language", lang, "bytes", len(data))

	jsonResponse(w, startResponse{Generation: gen, State: h.orch.Snapshot()}, http.StatusAccepted)
}

func (h *CaptureHandler) Current(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, h.orch.Snapshot(), http.StatusOK)
}

// Wait blocks until the generation settles, within the bounded-wait policy.
// Without a generation parameter it waits on the current one.
func (h *CaptureHandler) Wait(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.generation(w, r)
	if !ok {
		return
	}

	st, err := h.orch.Await(r.Context(), gen, h.wait)
	switch {
	case errors.Is(err, capture.ErrSuperseded):
		jsonResponse(w, st, http.StatusConflict)
	case errors.Is(err, capture.ErrUnknownGeneration):
		jsonError(w, "unknown generation", http.StatusNotFound)
	case err != nil:
		// client went away
		return
	case st.Error != nil && st.Error.Kind == capture.KindTimeout:
		jsonResponse(w, st, http.StatusGatewayTimeout)
	default:
		jsonResponse(w, st, http.StatusOK)
	}
}

func (h *CaptureHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.generation(w, r)
	if !ok {
		return
	}
	if !h.orch.Acknowledge(gen) {
		jsonResponse(w, h.orch.Snapshot(), http.StatusConflict)
		return
	}
	jsonResponse(w, h.orch.Snapshot(), http.StatusOK)
}

// Reset abandons the current capture.
func (h *CaptureHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.orch.Reset()
	jsonResponse(w, h.orch.Snapshot(), http.StatusOK)
}

func (h *CaptureHandler) generation(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	v := r.URL.Query().Get("generation")
	if v == "" {
		return h.orch.Snapshot().Generation, true
	}
	gen, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		jsonError(w, "invalid generation", http.StatusBadRequest)
		return 0, false
	}
	return gen, true
}

func readUpload(r *http.Request) ([]byte, string, error) {
	lang := strings.TrimSpace(r.URL.Query().Get("target_language"))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		return data, lang, err
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", err
	}
	defer r.MultipartForm.RemoveAll()

	if v := strings.TrimSpace(r.FormValue("target_language")); v != "" {
		lang = v
	}
	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		// an empty capture still runs, and fails as an image error
		return nil, lang, nil
	}
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	return data, lang, err
}
