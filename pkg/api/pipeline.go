package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/transcode"
	"github.com/psantana5/runner-orchestrator/pkg/transcript"
)

// PipelineHandler exposes the transcoding and transcription entrypoints to
// the owning application.
type PipelineHandler struct {
	transcoder   *transcode.Transcoder
	transcripter *transcript.Transcripter
	// baseURL is the default origin written into job download URLs when the
	// caller does not name one.
	baseURL string
	logger  *logging.Logger
}

// NewPipelineHandler creates the pipeline handler
func NewPipelineHandler(t *transcode.Transcoder, tr *transcript.Transcripter, baseURL string, logger *logging.Logger) *PipelineHandler {
	return &PipelineHandler{
		transcoder:   t,
		transcripter: tr,
		baseURL:      baseURL,
		logger:       logger,
	}
}

// RegisterRoutes registers the pipeline routes
func (h *PipelineHandler) RegisterRoutes(r *mux.Router) {
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/admin/videos/transcode", h.Transcode).Methods("POST")
	v1.HandleFunc("/admin/videos/transcript", h.Transcript).Methods("POST")
}

// Transcode starts the transcoding pipeline for a stored file
func (h *PipelineHandler) Transcode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FilePath    string `json:"filePath"`
		Destination string `json:"destination"`
		BaseName    string `json:"baseName"`
		Domain      string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.FilePath == "" || body.Destination == "" {
		http.Error(w, "filePath and destination are required", http.StatusBadRequest)
		return
	}

	domain := body.Domain
	if domain == "" {
		domain = h.baseURL
	}

	video, err := h.transcoder.TranscodeVideo(r.Context(), body.FilePath, body.Destination, domain, body.BaseName)
	if errors.Is(err, transcode.ErrSourceNotFound) {
		http.Error(w, "Video file does not exist", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to start transcoding", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Failed to start transcoding", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, video)
}

// Transcript starts the transcription pipeline for a video directory
func (h *PipelineHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Destination string `json:"destination"`
		VideoURL    string `json:"videoUrl"`
		Domain      string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.Destination == "" {
		http.Error(w, "destination is required", http.StatusBadRequest)
		return
	}

	domain := body.Domain
	if domain == "" {
		domain = h.baseURL
	}

	job, err := h.transcripter.TranscriptVideo(body.Destination, domain, body.VideoURL)
	if err != nil {
		h.logger.Error("Failed to start transcription", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Failed to start transcription", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"job": newSimpleRunnerJob(job),
	})
}
