package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/auscope/vgljobs/internal/errors"
	"github.com/auscope/vgljobs/pkg/jobstore"
	"github.com/auscope/vgljobs/pkg/registration"
)

// maxBodyBytes caps request bodies on the job and file routes.
const maxBodyBytes = 10 << 20

// PortalResponse is the envelope the portal front end reads.
type PortalResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Msg     string `json:"msg,omitempty"`
}

// Registrar publishes a job's catalog record.
type Registrar interface {
	RegisterJob(ctx context.Context, jobID int64) (string, error)
}

// JobLookup loads a job by ID.
type JobLookup interface {
	GetJobByID(ctx context.Context, id int64) (*jobstore.Job, error)
}

// StatusReactor records a status transition.
type StatusReactor interface {
	HandleStatusChange(ctx context.Context, job *jobstore.Job, newStatus, oldStatus string) error
}

// JobsHandler serves the job registration and status routes.
type JobsHandler struct {
	registrar Registrar
	jobs      JobLookup
	reactor   StatusReactor
	logger    *zap.Logger
}

func NewJobsHandler(registrar Registrar, jobs JobLookup, reactor StatusReactor, logger *zap.Logger) *JobsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobsHandler{registrar: registrar, jobs: jobs, reactor: reactor, logger: logger}
}

// Register handles POST /jobs/{jobID}/register. The response carries the
// registered record URL in data, or a user-facing message in msg.
func (h *JobsHandler) Register(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, PortalResponse{Msg: "Invalid job id."})
		return
	}

	url, err := h.registrar.RegisterJob(r.Context(), jobID)
	if err != nil {
		kind := registration.KindOf(err)
		h.logger.Debug("registration request rejected",
			zap.Int64("job_id", jobID),
			zap.Stringer("kind", kind),
			zap.Error(err),
		)
		writeJSON(w, registrationStatus(kind), PortalResponse{Msg: registrationMessage(kind)})
		return
	}

	h.logger.Info("job registered", zap.Int64("job_id", jobID), zap.String("url", url))
	writeJSON(w, http.StatusOK, PortalResponse{Success: true, Data: url})
}

// StatusRequest is the body of POST /jobs/{jobID}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// StatusResult is returned in data after a status change.
type StatusResult struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// Status handles POST /jobs/{jobID}/status. The previous status is read
// from the store.
func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		respondWithError(w, r, apperrors.BadRequest("invalid job id").Wrap(err))
		return
	}

	var req StatusRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		respondWithError(w, r, apperrors.BadRequest("malformed status body").Wrap(err))
		return
	}
	newStatus := strings.TrimSpace(req.Status)
	if newStatus == "" {
		respondWithError(w, r, apperrors.BadRequest("status is required"))
		return
	}

	job, err := h.jobs.GetJobByID(r.Context(), jobID)
	if err != nil {
		if jobstore.IsNotFound(err) {
			respondWithError(w, r, apperrors.NotFound("job "+strconv.FormatInt(jobID, 10)+" not found"))
			return
		}
		respondWithError(w, r, err)
		return
	}

	oldStatus := job.Status
	if err := h.reactor.HandleStatusChange(r.Context(), job, newStatus, oldStatus); err != nil {
		h.logger.Error("status change failed",
			zap.Int64("job_id", jobID),
			zap.String("from", oldStatus),
			zap.String("to", newStatus),
			zap.Error(err),
		)
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PortalResponse{Success: true, Data: StatusResult{ID: job.ID, Status: job.Status}})
}

func jobIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "jobID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("job id must be positive")
	}
	return id, nil
}

func registrationStatus(kind registration.Kind) int {
	switch kind.Category() {
	case registration.CategoryNotFound:
		return http.StatusNotFound
	case registration.CategoryUpstreamUnavailable:
		return http.StatusBadGateway
	case registration.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func registrationMessage(kind registration.Kind) string {
	switch kind {
	case registration.KindJobNotFound:
		return "The specified job does not exist."
	case registration.KindSeriesNotFound:
		return "The specified job does not belong to a series."
	case registration.KindStorageListingFailed:
		return "Unable to lookup job output files."
	case registration.KindCatalogRegistrationFailed:
		return "Error registering the job record with the catalog."
	case registration.KindAlreadyRegistered:
		return "The job has already been registered."
	default:
		return "Unable to register the job. Please try again later."
	}
}
