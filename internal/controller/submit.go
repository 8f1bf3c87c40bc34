package controller

import (
	"encoding/json"
	"net/http"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/encoder"
	"github.com/bobmcallan/nommer/internal/job"
)

type submitJobOptions struct {
	Nommer  string          `json:"nommer"`
	Options json.RawMessage `json:"options"`
}

type submitRequest struct {
	SourcePath string           `json:"source_path"`
	DestPath   string           `json:"dest_path"`
	NotifyURL  string           `json:"notify_url"`
	JobOptions submitJobOptions `json:"job_options"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	JobID   string `json:"job_id,omitempty"`
}

// SubmitHandler serves POST /job/submit (spec §6). Validation failures
// are InvalidRequest: a {success:false, message} response with no side
// effects — the job is never written to JobStore or either queue.
func (c *Controller) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeSubmitResponse(w, http.StatusMethodNotAllowed, submitResponse{Success: false, Message: "method not allowed"})
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSubmitResponse(w, http.StatusBadRequest, submitResponse{Success: false, Message: "invalid JSON body"})
		return
	}

	if msg := validateSubmitRequest(req, c.encoders); msg != "" {
		writeSubmitResponse(w, http.StatusBadRequest, submitResponse{Success: false, Message: msg})
		return
	}

	opts := job.Options{Encoder: req.JobOptions.Nommer, Raw: req.JobOptions.Options}
	j, err := job.New(req.SourcePath, req.DestPath, req.NotifyURL, opts, c.clock.Now())
	if err != nil {
		writeSubmitResponse(w, http.StatusInternalServerError, submitResponse{Success: false, Message: "failed to create job"})
		return
	}

	ctx := r.Context()

	var logger *common.Logger
	if c.logger != nil {
		logger = c.logger.WithCorrelationId(j.ID)
	}

	if err := c.jobs.Put(ctx, j); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("failed to persist new job")
		}
		writeSubmitResponse(w, http.StatusInternalServerError, submitResponse{Success: false, Message: "failed to save job"})
		return
	}
	c.cache.Put(j)

	if err := c.newJobQueue.Push(ctx, j.ID); err != nil {
		// Persistence already succeeded; per §4.1 a failed enqueue does
		// not roll back the write. The sweeper reconciles a job that
		// never gets picked up.
		if logger != nil {
			logger.Error().Err(err).Msg("failed to enqueue new job")
		}
	}

	writeSubmitResponse(w, http.StatusOK, submitResponse{Success: true, JobID: j.ID})
}

func validateSubmitRequest(req submitRequest, encoders *encoder.Registry) string {
	if req.SourcePath == "" {
		return "source_path is required"
	}
	if req.DestPath == "" {
		return "dest_path is required"
	}
	if req.JobOptions.Nommer == "" {
		return "job_options.nommer is required"
	}
	if len(req.JobOptions.Options) == 0 {
		return "job_options.options is required"
	}
	if encoders != nil && !encoders.Has(req.JobOptions.Nommer) {
		return "unknown encoder kind: " + req.JobOptions.Nommer
	}
	return ""
}

func writeSubmitResponse(w http.ResponseWriter, status int, resp submitResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
