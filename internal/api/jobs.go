package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/JuniperInterlinear/core/alignment"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/formats/base"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/store"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// BuildRequest is the request body for an index-build job. Path is
// relative to the server's sources directory; Format forces a source
// format by name and defaults to extension detection; Save persists the
// built book to the index database.
type BuildRequest struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
	Save   bool   `json:"save,omitempty"`
}

// BuildResult summarizes a completed index build.
type BuildResult struct {
	BookID      string `json:"book_id"`
	Title       string `json:"title,omitempty"`
	Verses      int    `json:"verses"`
	Words       int    `json:"words"`
	Attachments int    `json:"attachments"`
	Groups      int    `json:"groups"`
	Duration    string `json:"duration"`
	Saved       bool   `json:"saved"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Job represents an asynchronous index-build job.
type Job struct {
	ID          string             `json:"id"`
	Status      JobStatus          `json:"status"`
	Progress    int                `json:"progress"` // 0-100
	Result      *BuildResult       `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at"`
	CompletedAt string             `json:"completed_at,omitempty"`
	Request     BuildRequest       `json:"request"`
	ctx         context.Context    `json:"-"`
	cancel      context.CancelFunc `json:"-"`
}

// JobStore manages index-build jobs in memory.
type JobStore struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewJobStore creates a new job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
	}
}

// Create creates a new pending job.
func (s *JobStore) Create(req BuildRequest) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC().Format(time.RFC3339)

	job := &Job{
		ID:        uuid.New().String(),
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Request:   req,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.jobs[job.ID] = job
	return job
}

// Get retrieves a snapshot of a job by ID. Snapshots are stable for
// encoding while the job keeps running.
func (s *JobStore) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// Update updates a job's status and progress.
func (s *JobStore) Update(id string, status JobStatus, progress int, result *BuildResult, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	job.Status = status
	job.Progress = progress
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if result != nil {
		job.Result = result
	}
	if errMsg != "" {
		job.Error = errMsg
	}
	if status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled {
		job.CompletedAt = job.UpdatedAt
	}
	return nil
}

// List returns snapshots of all jobs.
func (s *JobStore) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	return jobs
}

// Cancel cancels a pending or running job.
func (s *JobStore) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.Status != JobStatusPending && job.Status != JobStatusRunning {
		return fmt.Errorf("job cannot be cancelled (status: %s)", job.Status)
	}

	if job.cancel != nil {
		job.cancel()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	job.Status = JobStatusCancelled
	job.UpdatedAt = now
	job.CompletedAt = now
	return nil
}

// runJob parses the source document, builds its alignment index fragment,
// merges it into the served index, and optionally persists it. Progress is
// broadcast to WebSocket clients as the stages complete.
func (s *Server) runJob(job *Job) {
	go func() {
		const op = "index-build"
		start := time.Now()

		progress := 0
		fail := func(msg string) {
			s.jobs.Update(job.ID, JobStatusFailed, progress, nil, msg)
			s.hub.Fail(op, msg)
		}

		progress = 10
		s.jobs.Update(job.ID, JobStatusRunning, progress, nil, "")
		s.hub.Progress(op, "parse", "parsing "+job.Request.Path, progress)

		rel, err := ValidateSourcePath(s.cfg.SourcesDir, job.Request.Path)
		if err != nil {
			fail(err.Error())
			return
		}
		path := filepath.Join(s.cfg.SourcesDir, rel)

		var src base.Source
		if job.Request.Format != "" {
			var ok bool
			src, ok = base.Get(job.Request.Format)
			if !ok {
				fail("unknown format: " + job.Request.Format)
				return
			}
		} else {
			src, err = base.ForPath(path)
			if err != nil {
				fail(err.Error())
				return
			}
		}

		book, err := base.ParseFileAs(src, path)
		if err != nil {
			fail(err.Error())
			return
		}
		if job.ctx.Err() != nil {
			s.jobs.Update(job.ID, JobStatusCancelled, 30, nil, "job cancelled")
			return
		}

		progress = 40
		s.jobs.Update(job.ID, JobStatusRunning, progress, nil, "")
		s.hub.Progress(op, "tokenize", fmt.Sprintf("indexing %s (%d verses)", book.ID, len(book.Verses)), progress)

		fragment, err := alignment.BuildBook(job.ctx, book)
		if err != nil {
			if job.ctx.Err() != nil {
				s.jobs.Update(job.ID, JobStatusCancelled, 60, nil, "job cancelled")
				return
			}
			fail(err.Error())
			return
		}
		st := fragment.Stats()
		s.index.Merge(fragment)

		result := &BuildResult{
			BookID:      book.ID,
			Title:       book.Title,
			Verses:      st.Verses,
			Words:       st.Words,
			Attachments: st.Attachments,
			Groups:      st.Groups,
		}

		if job.Request.Save && s.store != nil {
			progress = 80
			s.jobs.Update(job.ID, JobStatusRunning, progress, nil, "")
			s.hub.Progress(op, "persist", "saving "+book.ID, progress)

			data, err := os.ReadFile(path)
			if err != nil {
				fail(err.Error())
				return
			}
			result.Fingerprint = store.Fingerprint(data)
			if _, err := s.store.SaveBook(job.ctx, fragment, book.ID, book.Title, result.Fingerprint); err != nil {
				fail(err.Error())
				return
			}
			result.Saved = true
		}

		result.Duration = time.Since(start).Round(time.Millisecond).String()
		s.jobs.Update(job.ID, JobStatusCompleted, 100, result, "")
		s.hub.Complete(op, "indexed "+book.ID, map[string]any{
			"book_id": book.ID,
			"verses":  st.Verses,
			"words":   st.Words,
		})
		logging.Info("index-build job completed",
			"job_id", job.ID,
			"book", book.ID,
			"duration", result.Duration)
	}()
}

// handleJobs handles GET /jobs (list) and POST /jobs (create).
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs := s.jobs.List()
		respondTotal(w, http.StatusOK, jobs, len(jobs))

	case http.MethodPost:
		var req BuildRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
			return
		}
		if req.Path == "" {
			respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "path is required")
			return
		}
		if s.cfg.SourcesDir == "" {
			respondError(w, http.StatusBadRequest, "NO_SOURCES_DIR", "server has no sources directory configured")
			return
		}
		if _, err := ValidateSourcePath(s.cfg.SourcesDir, req.Path); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PATH", err.Error())
			return
		}

		job := s.jobs.Create(req)
		s.runJob(job)
		// Encode a snapshot: the job goroutine is already mutating the
		// stored record.
		snapshot, _ := s.jobs.Get(job.ID)
		respond(w, http.StatusCreated, snapshot)

	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and POST are allowed")
	}
}

// handleJobByID handles GET /jobs/{id} and DELETE /jobs/{id} (cancel).
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "MISSING_ID", "Job ID is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, exists := s.jobs.Get(id)
		if !exists {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}
		respond(w, http.StatusOK, job)

	case http.MethodDelete:
		if err := s.jobs.Cancel(id); err != nil {
			if strings.Contains(err.Error(), "not found") {
				respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
				return
			}
			respondError(w, http.StatusBadRequest, "CANCEL_FAILED", err.Error())
			return
		}
		respond(w, http.StatusOK, map[string]string{"message": "Job cancelled"})

	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and DELETE are allowed")
	}
}
