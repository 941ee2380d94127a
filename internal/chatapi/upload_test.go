package chatapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/utjfc/reg-agent/internal/llm"
)

func newUploadRequest(t *testing.T, sessionID string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("session_id", sessionID); err != nil {
		t.Fatalf("write session_id field: %v", err)
	}
	part, err := writer.CreateFormFile("file", "photo.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write file data: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload-async", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHandleUploadAsync_AcknowledgesImmediatelyThenCompletes(t *testing.T) {
	provider := &scriptedProvider{results: []*llm.InvokeResult{reply("hi", nil)}}
	h, sessionStore, db := newTestHandler(t, provider, false)
	sessionStore.GetOrCreate("sess-upload")
	sessionStore.InjectMetadata("sess-upload", map[string]string{"record_id": "rec-upload"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newUploadRequest(t, "sess-upload", testImage(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}

	var ack uploadAsyncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.Processing || ack.SessionID != "sess-upload" || ack.Response == "" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	deadline := time.Now().Add(2 * time.Second)
	var status uploadStatusResponse
	for time.Now().Before(deadline) {
		pollReq := httptest.NewRequest(http.MethodGet, "/upload-status/sess-upload", nil)
		pollRec := httptest.NewRecorder()
		h.ServeHTTP(pollRec, pollReq)
		if err := json.Unmarshal(pollRec.Body.Bytes(), &status); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if status.Complete {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !status.Complete || status.Error {
		t.Fatalf("expected a completed, successful upload, got %+v", status)
	}
	if db.writePhotoURLCalls != 1 || db.lastRecordID != "rec-upload" {
		t.Errorf("WritePhotoURL calls = %d, lastRecordID = %q", db.writePhotoURLCalls, db.lastRecordID)
	}
}

func TestHandleUploadStatus_UnknownSessionReportsError(t *testing.T) {
	h, _, _ := newTestHandler(t, &scriptedProvider{}, false)

	req := httptest.NewRequest(http.MethodGet, "/upload-status/never-uploaded", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var status uploadStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Complete || !status.Error {
		t.Errorf("expected complete+error for unknown session, got %+v", status)
	}
}
