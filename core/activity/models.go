package activity

import (
	"time"

	"github.com/darasahq/darasa/core"
)

// Attempt / submission statuses
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusDraft      = "draft" // assignments only
	StatusSubmitted  = "submitted"
	StatusGraded     = "graded"
	StatusLate       = "late"
)

// Question types
const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionTrueFalse      = "true_false"
	QuestionShortAnswer    = "short_answer"
)

// Assignment priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// List filters
const (
	FilterAll       = "all"
	FilterUpcoming  = "upcoming"
	FilterPast      = "past"
	FilterPending   = "pending"
	FilterSubmitted = "submitted"
)

type ClassActivity struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"class_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"` // e.g. "quiz", "test", "exam"
	DueDate     time.Time `json:"due_date"` // UTC
	TotalPoints int       `json:"total_points"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// Question's correct answer never leaves the server.
type Question struct {
	ID            string   `json:"id"`
	ActivityID    string   `json:"activity_id"`
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"-"`
	Points        int      `json:"points"`
	Order         int      `json:"order"`
}

// StudentClassActivity is one student's attempt at a class activity.
type StudentClassActivity struct {
	ID          string            `json:"id"`
	StudentID   string            `json:"student_id"`
	ActivityID  string            `json:"activity_id"`
	Status      string            `json:"status"`
	StartedAt   time.Time         `json:"started_at,omitempty"`   // UTC
	SubmittedAt time.Time         `json:"submitted_at,omitempty"` // UTC
	Score       int               `json:"score"`
	Answers     map[string]string `json:"answers,omitempty"` // question ID -> answer
}

// IsSubmitted reports whether the attempt reached a terminal state.
func (a StudentClassActivity) IsSubmitted() bool {
	return a.Status == StatusSubmitted || a.Status == StatusGraded || a.Status == StatusLate
}

type Assignment struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"class_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
	DueDate     time.Time `json:"due_date"` // UTC
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// StudentAssignment is one student's submission workspace for an assignment.
type StudentAssignment struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	AssignmentID   string    `json:"assignment_id"`
	Status         string    `json:"status"`
	StartedAt      time.Time `json:"started_at,omitempty"`   // UTC
	SubmittedAt    time.Time `json:"submitted_at,omitempty"` // UTC
	SubmissionText string    `json:"submission_text,omitempty"`
	SubmissionURL  string    `json:"submission_url,omitempty"`
	Grade          *float64  `json:"grade,omitempty"`
	Feedback       string    `json:"feedback,omitempty"`
}

// IsFinal reports whether the submission can no longer be modified.
func (sa StudentAssignment) IsFinal() bool {
	return sa.Status == StatusSubmitted || sa.Status == StatusGraded
}

// SubmitActivity carries a student's answers, keyed by question ID.
type SubmitActivity struct {
	Answers map[string]string `json:"answers" validate:"required"`
}

func (s *SubmitActivity) Validate() error { return core.Validate.Struct(s) }

// SubmissionResult reports the outcome of an activity submission. The score
// is returned whether the submission was on time or late.
type SubmissionResult struct {
	Status      string `json:"status"`
	Score       int    `json:"score"`
	TotalPoints int    `json:"total_points"`
}

// DraftSubmission carries work-in-progress assignment content.
// Last write wins.
type DraftSubmission struct {
	SubmissionText string `json:"submission_text"`
	SubmissionURL  string `json:"submission_url" validate:"omitempty,url"`
}

func (d *DraftSubmission) Validate() error {
	d.SubmissionText = core.CleanString(d.SubmissionText)
	d.SubmissionURL = core.CleanString(d.SubmissionURL)
	return core.Validate.Struct(d)
}

// NewQuestion is one question of a new class activity.
type NewQuestion struct {
	Text          string   `json:"text" validate:"required"`
	Type          string   `json:"type" validate:"required,oneof=multiple_choice true_false short_answer"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer" validate:"required"`
	Points        int      `json:"points" validate:"min=1"`
}

// NewClassActivity contains information needed to create a class activity
// with its questions.
type NewClassActivity struct {
	ClassID     string        `json:"class_id" validate:"required"`
	Title       string        `json:"title" validate:"required"`
	Description string        `json:"description"`
	Type        string        `json:"type" validate:"required"`
	DueDate     time.Time     `json:"due_date" validate:"required"`
	Questions   []NewQuestion `json:"questions" validate:"required,min=1,dive"`
}

func (na *NewClassActivity) Validate() error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	return core.Validate.Struct(na)
}

// NewAssignment contains information needed to create an assignment for a
// set of students.
type NewAssignment struct {
	ClassID     string    `json:"class_id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	Priority    string    `json:"priority" validate:"required,oneof=low medium high"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	StudentIDs  []string  `json:"student_ids" validate:"required,min=1"`
}

func (na *NewAssignment) Validate() error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	return core.Validate.Struct(na)
}

// GradeSubmission carries a teacher's grade and feedback for a submission.
type GradeSubmission struct {
	Grade    float64 `json:"grade" validate:"min=0,max=100"`
	Feedback string  `json:"feedback"`
}

func (g *GradeSubmission) Validate() error {
	g.Feedback = core.CleanString(g.Feedback)
	return core.Validate.Struct(g)
}

// ActivityListItem is a class activity as shown on the student's list,
// with their attempt status.
type ActivityListItem struct {
	ClassActivity
	AttemptStatus string `json:"attempt_status"`
}

// ActivityDetail expands an activity with the student's attempt.
type ActivityDetail struct {
	ClassActivity
	AttemptStatus string    `json:"attempt_status"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at,omitempty"`
	Score         int       `json:"score,omitempty"`
	QuestionCount int       `json:"question_count"`
}

// QuestionPage is one page of an activity's questions.
type QuestionPage struct {
	Questions []Question `json:"questions"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}

// AssignmentListItem is an assignment as shown on the student's list,
// with their submission status.
type AssignmentListItem struct {
	Assignment
	SubmissionStatus string `json:"submission_status"`
}
