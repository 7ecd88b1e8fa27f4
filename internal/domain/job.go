package domain

import (
	"strings"
	"time"
)

// JobState represents the lifecycle state of a frame-extraction job.
type JobState string

const (
	StateAbsent     JobState = "absent"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateError      JobState = "error"

	// StateTimeout is only ever reported by a status stream that gave up.
	StateTimeout JobState = "timeout"
)

// errorPrefix is how an error status is persisted: "error: <message>".
const errorPrefix = "error: "

// Status is a job state plus the failure detail for StateError.
type Status struct {
	State  JobState `json:"status"`
	Detail string   `json:"detail,omitempty"`
}

// Status constructors.
func Processing() Status { return Status{State: StateProcessing} }
func Completed() Status  { return Status{State: StateCompleted} }
func Absent() Status     { return Status{State: StateAbsent} }

// Failed builds an error status. The detail is trimmed so the persisted
// token parses back to an equal status.
func Failed(detail string) Status {
	return Status{State: StateError, Detail: strings.TrimSpace(detail)}
}

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s.State == StateCompleted || s.State == StateError
}

// String renders the persisted token for the status.
func (s Status) String() string {
	if s.State == StateError {
		return errorPrefix + s.Detail
	}
	return string(s.State)
}

// ParseStatus reads a persisted status token. Unknown tokens are treated as
// processing, since a half-written record can only come from a live worker.
func ParseStatus(raw string) Status {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == string(StateCompleted):
		return Completed()
	case raw == string(StateError):
		return Failed("")
	case strings.HasPrefix(raw, string(StateError)+":"):
		return Failed(strings.TrimSpace(strings.TrimPrefix(raw, string(StateError)+":")))
	case raw == "":
		return Absent()
	default:
		return Processing()
	}
}

// DecisionKind is the outcome of a submission.
type DecisionKind string

const (
	DecisionAlreadyFinal                 DecisionKind = "already_final"
	DecisionAlreadyProcessingOrCandidate DecisionKind = "already_processing_or_candidate"
	DecisionStarted                      DecisionKind = "started"
)

// Decision is returned by a submission. ID is always the job id of the URL.
type Decision struct {
	Kind DecisionKind `json:"decision"`
	ID   string       `json:"id"`
}

// Bucket names one of the per-job frame groups.
type Bucket string

const (
	BucketFrames Bucket = "frames"
	BucketFinal  Bucket = "final"
)

// IsValid checks if the bucket is one of the known buckets.
func (b Bucket) IsValid() bool {
	return b == BucketFrames || b == BucketFinal
}

// Frame is one image in a bucket and the URL it can be fetched from.
type Frame struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// RecentJob is an entry of the recently finalized listing.
type RecentJob struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Thumbnail string    `json:"thumbnail"`
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata is stored next to the final frames of a job.
type Metadata struct {
	Title       string    `json:"title"`
	SourceURL   string    `json:"sourceUrl"`
	ProcessedAt time.Time `json:"processedAt"`
}

// Task is the unit of background work handed to the worker pool.
type Task struct {
	ID        string    `json:"id"`
	SourceURL string    `json:"source_url"`
	QueuedAt  time.Time `json:"queued_at"`
}

// TaskMessage wraps a Task with acknowledgement callbacks from its queue.
type TaskMessage struct {
	Task *Task
	Ack  func() error
	Nack func(requeue bool) error
}

// JobRecord is the index entry kept for every submitted job.
type JobRecord struct {
	ID         string    `json:"id"`
	SourceURL  string    `json:"source_url"`
	Title      string    `json:"title,omitempty"`
	Status     JobState  `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	FrameCount int       `json:"frame_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SubmitRequest represents an incoming video submission.
type SubmitRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// SelectionRequest carries the frames a user picked.
type SelectionRequest struct {
	Frames []string `json:"frames" binding:"required"`
}

// JobView is the GET /jobs/:id response.
type JobView struct {
	ID        string     `json:"id"`
	SourceURL string     `json:"source_url"`
	Title     string     `json:"title,omitempty"`
	HasFinal  bool       `json:"has_final"`
	HasFrames bool       `json:"has_frames"`
	Record    *JobRecord `json:"record,omitempty"`
}

// PollUpdate is one message of a status stream.
type PollUpdate struct {
	ID      string   `json:"id"`
	Status  JobState `json:"status"`
	Detail  string   `json:"detail,omitempty"`
	Attempt int      `json:"attempt"`
}

// NewPollUpdate builds the stream message for a tracker read.
func NewPollUpdate(id string, status Status, attempt int) PollUpdate {
	state := status.State
	if !status.IsTerminal() {
		state = StateProcessing
	}
	return PollUpdate{ID: id, Status: state, Detail: status.Detail, Attempt: attempt}
}
