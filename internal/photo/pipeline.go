package photo

import (
	"context"
	"errors"
	"fmt"

	"github.com/utjfc/reg-agent/internal/adapters"
	"github.com/utjfc/reg-agent/internal/observability"
	"github.com/utjfc/reg-agent/pkg/models"
)

// DefaultWorkerPoolSize is the default number of photo uploads the
// pipeline processes concurrently (§5: "a worker pool of at least 2").
const DefaultWorkerPoolSize = 4

// UploadRequest is the input to Start: the raw bytes a parent uploaded
// plus enough session context to finish the job (§4.8 start).
type UploadRequest struct {
	SessionID       string
	RecordID        string
	ContentType     string
	Data            []byte
	FollowUpAgent   models.AgentName
	FollowUpStep    *int
	SuccessResponse string
}

// Pipeline runs the async photo upload worker pool (C8). Its goroutines run
// independently of the chat request path; Start returns immediately with
// an acknowledgement and the actual work finishes later, observed via Poll.
type Pipeline struct {
	store     *Store
	optimizer *Optimizer
	vision    VisionVerifier
	photos    adapters.PhotoStore
	db        adapters.DB
	sem       chan struct{}
	logger    *observability.Logger
}

// New builds a Pipeline with a worker pool bounded by poolSize; a poolSize
// below 2 is replaced by DefaultWorkerPoolSize.
func New(store *Store, optimizer *Optimizer, vision VisionVerifier, photos adapters.PhotoStore, db adapters.DB, poolSize int, logger *observability.Logger) *Pipeline {
	if poolSize < 2 {
		poolSize = DefaultWorkerPoolSize
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Pipeline{
		store:     store,
		optimizer: optimizer,
		vision:    vision,
		photos:    photos,
		db:        db,
		sem:       make(chan struct{}, poolSize),
		logger:    logger,
	}
}

// Start persists the upload request into the status store and dispatches a
// worker goroutine, returning an immediate acknowledgement text (§4.8
// start). The worker waits for a pool slot and then runs with its own
// background context, so a client disconnect never cancels a queued or
// in-flight upload.
func (p *Pipeline) Start(ctx context.Context, req UploadRequest) string {
	generation := p.store.Start(req.SessionID)

	go func() {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		p.run(context.Background(), req, generation)
	}()

	return "Thanks, we've received the photo and are checking it now. This can take a few moments."
}

// Poll returns the current status of sessionID's most recent upload
// (§4.8 poll).
func (p *Pipeline) Poll(sessionID string) (models.UploadJob, bool) {
	return p.store.Poll(sessionID)
}

// run executes the worker task of §4.8: optimise, verify, store, and write
// the photo URL, recording the outcome to the status store on every exit
// path including panics recovered from the optimiser or vendor calls.
func (p *Pipeline) run(ctx context.Context, req UploadRequest, generation int) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "photo worker panicked", "session_id", req.SessionID, "panic", r)
			p.store.Fail(req.SessionID, generation, "Sorry, something went wrong processing that photo. Please try again or email support.")
		}
	}()

	optimized, err := p.optimizer.Optimize(req.Data, DetectContentType(req.Data, req.ContentType))
	if err != nil {
		p.logger.Warn(ctx, "photo optimise failed", "session_id", req.SessionID, "error", err)
		p.store.Fail(req.SessionID, generation, rejectionMessage(err))
		return
	}

	accepted, reason, err := p.vision.Verify(ctx, optimized)
	if err != nil {
		p.logger.Warn(ctx, "photo vision verify failed", "session_id", req.SessionID, "error", err)
		p.store.Fail(req.SessionID, generation, "We couldn't verify that photo just now. Please try uploading again.")
		return
	}
	if !accepted {
		p.store.Fail(req.SessionID, generation, fmt.Sprintf("That photo wasn't accepted: %s. Please upload another.", reason))
		return
	}

	if existed, err := p.photos.Exists(ctx, req.SessionID); err != nil {
		p.logger.Warn(ctx, "photo exists check failed", "session_id", req.SessionID, "error", err)
	} else if existed {
		p.logger.Info(ctx, "photo upload supersedes an existing photo", "session_id", req.SessionID)
	}

	url, err := p.photos.PutImage(ctx, req.SessionID, optimized, "image/jpeg")
	if err != nil {
		p.logger.Error(ctx, "photo store failed", "session_id", req.SessionID, "error", err)
		p.store.Fail(req.SessionID, generation, "We couldn't save that photo just now. Please try again or email support.")
		return
	}

	if err := p.db.WritePhotoURL(ctx, req.RecordID, url); err != nil {
		p.logger.Error(ctx, "write photo url failed", "session_id", req.SessionID, "error", err)
		p.store.Fail(req.SessionID, generation, "We saved the photo but couldn't finish updating your registration. Please email support.")
		return
	}

	p.store.Finish(req.SessionID, generation, req.SuccessResponse, req.FollowUpAgent, req.FollowUpStep)
}

func rejectionMessage(err error) string {
	if errors.Is(err, ErrImageTooSmall) {
		return "That image is too small to use for a player photo. Please upload a larger, clearer photo."
	}
	return "We couldn't process that photo. Please upload a JPEG, PNG, WEBP, or HEIC image."
}
