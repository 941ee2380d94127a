package chatapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/utjfc/reg-agent/internal/photo"
)

// uploadAsyncResponse is POST /upload-async's immediate acknowledgement
// (§6): the actual processing result is only ever available via a later
// GET /upload-status/{session_id} poll.
type uploadAsyncResponse struct {
	Response   string `json:"response"`
	Processing bool   `json:"processing"`
	SessionID  string `json:"session_id"`
}

// uploadStatusResponse is GET /upload-status/{session_id}'s response (§6).
type uploadStatusResponse struct {
	Complete      bool   `json:"complete"`
	Response      string `json:"response,omitempty"`
	Error         bool   `json:"error,omitempty"`
	LastAgent     string `json:"last_agent,omitempty"`
	RoutineNumber *int   `json:"routine_number,omitempty"`
}

// handleUploadAsync implements POST /upload-async: a multipart upload with
// fields file, session_id, last_agent?, routine_number? (§6). Transport
// failures (missing fields, oversized or malformed payload) get response
// codes; once accepted, all further outcomes, including an unsupported or
// undecodable image format, are domain errors surfaced only through the
// status payload (§7's upload propagation rule).
func (h *Handler) handleUploadAsync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+512<<10)
	if err := r.ParseMultipartForm(h.maxUploadBytes + 512<<10); err != nil {
		h.jsonError(w, "upload too large or malformed", http.StatusRequestEntityTooLarge)
		return
	}

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		h.jsonError(w, "session_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.jsonError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.jsonError(w, "failed to read uploaded file", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		h.jsonError(w, fmt.Sprintf("photo exceeds the %d byte limit (got %d bytes)", h.maxUploadBytes, len(data)), http.StatusRequestEntityTooLarge)
		return
	}

	// Format validation happens inside the pipeline itself: an unsupported
	// or corrupt image fails to decode during Optimize and is surfaced as a
	// domain error on the status poll, not rejected here at the transport
	// layer (§7's upload propagation rule).
	contentType := photo.DetectContentType(data, header.Header.Get("Content-Type"))

	session := h.sessions.GetOrCreate(sessionID)
	recordID := session.Metadata["record_id"]

	ack := h.pipeline.Start(r.Context(), photo.UploadRequest{
		SessionID:       sessionID,
		RecordID:        recordID,
		ContentType:     contentType,
		Data:            data,
		FollowUpAgent:   session.Agent,
		FollowUpStep:    session.Step,
		SuccessResponse: "Thanks, we've saved your photo.",
	})

	h.jsonResponse(w, uploadAsyncResponse{
		Response:   ack,
		Processing: true,
		SessionID:  sessionID,
	})
}

// handleUploadStatus implements GET /upload-status/{session_id} (§6): a
// poll that returns {complete: false} while the worker is still running,
// or the final outcome once it finishes.
func (h *Handler) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("session_id"))
	if sessionID == "" {
		h.jsonError(w, "session_id is required", http.StatusBadRequest)
		return
	}

	job, ok := h.pipeline.Poll(sessionID)
	if !ok {
		h.jsonResponse(w, uploadStatusResponse{Complete: true, Error: true, Response: "No upload found for that session."})
		return
	}

	h.jsonResponse(w, uploadStatusResponse{
		Complete:      job.Complete,
		Response:      job.Response,
		Error:         job.Error,
		LastAgent:     string(job.AgentName),
		RoutineNumber: job.Step,
	})
}
