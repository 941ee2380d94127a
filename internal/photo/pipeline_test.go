package photo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/utjfc/reg-agent/pkg/models"
)

type fakeVerifier struct {
	accepted bool
	reason   string
	err      error
}

func (f *fakeVerifier) Verify(ctx context.Context, jpegData []byte) (bool, string, error) {
	return f.accepted, f.reason, f.err
}

type fakePhotoStore struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
}

func (f *fakePhotoStore) PutImage(ctx context.Context, sessionID string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func (f *fakePhotoStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	return false, nil
}

type fakeDB struct {
	mu         sync.Mutex
	err        error
	lastRecord string
	lastURL    string
}

func (f *fakeDB) LookupTeam(ctx context.Context, name, ageGroup string) (*models.Team, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeDB) LookupPlayer(ctx context.Context, team, ageGroup, season, firstName, lastName string) (*models.RegistrationRecord, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeDB) UpsertRegistration(ctx context.Context, record *models.RegistrationRecord) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeDB) ShirtNumberTaken(ctx context.Context, team, ageGroup string, number int) (bool, error) {
	return false, errors.New("not implemented")
}
func (f *fakeDB) WriteKit(ctx context.Context, recordID, size string, number int, kitType string) error {
	return errors.New("not implemented")
}
func (f *fakeDB) WritePhotoURL(ctx context.Context, recordID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRecord = recordID
	f.lastURL = url
	return f.err
}
func (f *fakeDB) CheckKitNeeded(ctx context.Context, team, ageGroup, firstName, lastName string) (bool, error) {
	return false, errors.New("not implemented")
}

func waitForComplete(t *testing.T, store *Store, sessionID string) models.UploadJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := store.Poll(sessionID)
		if ok && job.Complete {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for upload job to complete")
	return models.UploadJob{}
}

func newTestImage(t *testing.T) []byte {
	t.Helper()
	return solidJPEG(t, 1600, 1600)
}

func TestPipeline_StartReturnsImmediateAcknowledgement(t *testing.T) {
	store := NewStore()
	p := New(store, NewOptimizer(nil), &fakeVerifier{accepted: true}, &fakePhotoStore{url: "s3://bucket/x.jpg"}, &fakeDB{}, 2, nil)

	step := 23
	ack := p.Start(context.Background(), UploadRequest{
		SessionID:       "sess-1",
		RecordID:        "rec-1",
		ContentType:     "image/jpeg",
		Data:            newTestImage(t),
		SuccessResponse: "got it",
		FollowUpStep:    &step,
	})
	if ack == "" {
		t.Fatal("expected a non-empty immediate acknowledgement")
	}

	job := waitForComplete(t, store, "sess-1")
	if job.Error {
		t.Fatalf("expected success, got error job: %+v", job)
	}
	if job.Response != "got it" {
		t.Errorf("response = %q", job.Response)
	}
	if job.Step == nil || *job.Step != 23 {
		t.Errorf("step = %v", job.Step)
	}
}

func TestPipeline_RunCallsStagesInOrderOnSuccess(t *testing.T) {
	store := NewStore()
	photos := &fakePhotoStore{url: "s3://bucket/photo.jpg"}
	db := &fakeDB{}
	p := New(store, NewOptimizer(nil), &fakeVerifier{accepted: true}, photos, db, 2, nil)

	p.Start(context.Background(), UploadRequest{
		SessionID:       "sess-2",
		RecordID:        "rec-2",
		ContentType:     "image/jpeg",
		Data:            newTestImage(t),
		SuccessResponse: "done",
	})

	waitForComplete(t, store, "sess-2")

	if photos.calls != 1 {
		t.Errorf("PutImage calls = %d, want 1", photos.calls)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.lastRecord != "rec-2" || db.lastURL != "s3://bucket/photo.jpg" {
		t.Errorf("WritePhotoURL got (%q, %q)", db.lastRecord, db.lastURL)
	}
}

func TestPipeline_OptimizeFailureRecordsRejection(t *testing.T) {
	store := NewStore()
	p := New(store, NewOptimizer(nil), &fakeVerifier{accepted: true}, &fakePhotoStore{}, &fakeDB{}, 2, nil)

	p.Start(context.Background(), UploadRequest{
		SessionID:   "sess-3",
		RecordID:    "rec-3",
		ContentType: "image/jpeg",
		Data:        solidJPEG(t, 100, 100), // too small
	})

	job := waitForComplete(t, store, "sess-3")
	if !job.Error {
		t.Fatal("expected an error job for an undersized image")
	}
}

func TestPipeline_VisionRejectionRecordsReason(t *testing.T) {
	store := NewStore()
	p := New(store, NewOptimizer(nil), &fakeVerifier{accepted: false, reason: "no face visible"}, &fakePhotoStore{}, &fakeDB{}, 2, nil)

	p.Start(context.Background(), UploadRequest{
		SessionID:   "sess-4",
		RecordID:    "rec-4",
		ContentType: "image/jpeg",
		Data:        newTestImage(t),
	})

	job := waitForComplete(t, store, "sess-4")
	if !job.Error {
		t.Fatal("expected an error job for a rejected photo")
	}
}

func TestPipeline_PhotoStoreFailureRecordsError(t *testing.T) {
	store := NewStore()
	p := New(store, NewOptimizer(nil), &fakeVerifier{accepted: true}, &fakePhotoStore{err: errors.New("s3 down")}, &fakeDB{}, 2, nil)

	p.Start(context.Background(), UploadRequest{
		SessionID:   "sess-5",
		RecordID:    "rec-5",
		ContentType: "image/jpeg",
		Data:        newTestImage(t),
	})

	job := waitForComplete(t, store, "sess-5")
	if !job.Error {
		t.Fatal("expected an error job when the photo store fails")
	}
}

func TestPipeline_WritePhotoURLFailureRecordsError(t *testing.T) {
	store := NewStore()
	db := &fakeDB{err: errors.New("db down")}
	p := New(store, NewOptimizer(nil), &fakeVerifier{accepted: true}, &fakePhotoStore{url: "s3://bucket/x.jpg"}, db, 2, nil)

	p.Start(context.Background(), UploadRequest{
		SessionID:   "sess-6",
		RecordID:    "rec-6",
		ContentType: "image/jpeg",
		Data:        newTestImage(t),
	})

	job := waitForComplete(t, store, "sess-6")
	if !job.Error {
		t.Fatal("expected an error job when writing the photo url fails")
	}
}

func TestPipeline_SecondUploadSupersedesFirst(t *testing.T) {
	store := NewStore()
	p := New(store, NewOptimizer(nil), &fakeVerifier{accepted: true}, &fakePhotoStore{url: "s3://bucket/x.jpg"}, &fakeDB{}, 2, nil)

	// First upload is undersized (will fail); second is valid. Since both
	// run concurrently, only the generation check in Store guarantees the
	// final poll reflects whichever Start happened most recently once both
	// have settled -- here we assert the second (valid) request eventually
	// wins by re-uploading after the first has had time to land.
	p.Start(context.Background(), UploadRequest{
		SessionID:   "sess-7",
		RecordID:    "rec-7",
		ContentType: "image/jpeg",
		Data:        solidJPEG(t, 100, 100),
	})
	time.Sleep(20 * time.Millisecond)

	p.Start(context.Background(), UploadRequest{
		SessionID:       "sess-7",
		RecordID:        "rec-7",
		ContentType:     "image/jpeg",
		Data:            newTestImage(t),
		SuccessResponse: "second upload accepted",
	})

	job := waitForComplete(t, store, "sess-7")
	if job.Error || job.Response != "second upload accepted" {
		t.Fatalf("expected the second upload's success to win, got %+v", job)
	}
}

func TestPipeline_PollUnknownSessionNotOK(t *testing.T) {
	store := NewStore()
	p := New(store, NewOptimizer(nil), &fakeVerifier{accepted: true}, &fakePhotoStore{}, &fakeDB{}, 2, nil)

	if _, ok := p.Poll("nope"); ok {
		t.Error("expected ok=false for a session with no upload job")
	}
}
