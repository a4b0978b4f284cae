package academic

import (
	"fmt"
	"math"
	"time"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/user"
)

// Class types
const (
	ClassTypeCompulsory = "compulsory"
	ClassTypeElective   = "elective"
)

// Roadmap statuses
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Live session statuses
const (
	SessionScheduled = "scheduled"
	SessionLive      = "live"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

type Class struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Type       string    `json:"type"` // compulsory | elective
	GradeLevel string    `json:"grade_level"`
	TeacherID  string    `json:"teacher_id"`
	StartDate  time.Time `json:"start_date"` // term period, UTC
	EndDate    time.Time `json:"end_date"`   // UTC
	StartTime  string    `json:"start_time"` // daily schedule, "15:04"
	EndTime    string    `json:"end_time"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC

	Teacher user.User `json:"teacher,omitempty"` // populated on reads
}

// StatusAt reports where the class term stands relative to now.
func (c Class) StatusAt(now time.Time) string {
	switch {
	case now.Before(c.StartDate):
		return StatusNotStarted
	case now.After(c.EndDate):
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

// Duration renders the term length in the largest sensible unit.
func (c Class) Duration() string {
	days := int(math.Ceil(c.EndDate.Sub(c.StartDate).Hours() / 24))
	if days < 1 {
		days = 1
	}
	switch {
	case days > 60:
		return pluralize(int(math.Ceil(float64(days)/30)), "month")
	case days > 7:
		return pluralize(int(math.Ceil(float64(days)/7)), "week")
	default:
		return pluralize(days, "day")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

type StudentClassRegistration struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	ClassID     string    `json:"class_id"`
	SessionYear string    `json:"session_year"` // e.g. "2023/2024"
	Term        string    `json:"term"`
	CreatedAt   time.Time `json:"created_at"` // UTC

	Class Class `json:"class,omitempty"` // populated on reads
}

// SubjectModule is one ordered milestone on a class roadmap.
type SubjectModule struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"class_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

type LiveSession struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"class_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	StartTime   time.Time `json:"start_time"` // UTC
	EndTime     time.Time `json:"end_time"`   // UTC
	MeetingURL  string    `json:"meeting_url,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"` // UTC

	Class Class `json:"class,omitempty"` // populated on reads
}

// IsJoinableAt reports whether the session is open at `now`.
func (s LiveSession) IsJoinableAt(now time.Time) bool {
	if s.Status == SessionCancelled || s.Status == SessionCompleted {
		return false
	}
	return !now.Before(s.StartTime) && !now.After(s.EndTime)
}

func (s LiveSession) HasEndedAt(now time.Time) bool {
	return s.Status == SessionCompleted || s.Status == SessionCancelled || now.After(s.EndTime)
}

type SessionMessage struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

type Reminder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	Title     string    `json:"title"`
	RemindAt  time.Time `json:"remind_at"`  // UTC
	CreatedAt time.Time `json:"created_at"` // UTC
}

type LearningMaterial struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"class_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type,omitempty"` // e.g. "video", "document"
	FileURL     string    `json:"file_url,omitempty"`
	Views       int       `json:"views"`
	CreatedAt   time.Time `json:"created_at"` // UTC

	LectureNotes []LectureNote `json:"lecture_notes,omitempty"` // populated on detail reads
}

type LectureNote struct {
	ID         string    `json:"id"`
	MaterialID string    `json:"material_id"`
	Title      string    `json:"title"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"created_at"` // UTC

	Sections []LectureNoteSection `json:"sections,omitempty"`
}

type LectureNoteSection struct {
	ID      string `json:"id"`
	NoteID  string `json:"note_id"`
	Heading string `json:"heading"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

// RegisterSubjects carries a bulk subject registration request.
type RegisterSubjects struct {
	Subjects    []string `json:"subjects" validate:"required,min=1"`
	SessionYear string   `json:"session_year" validate:"required"`
	Term        string   `json:"term" validate:"required"`
}

func (rs *RegisterSubjects) Validate() error {
	for i, s := range rs.Subjects {
		rs.Subjects[i] = core.CleanString(s)
	}
	rs.SessionYear = core.CleanString(rs.SessionYear)
	rs.Term = core.CleanString(rs.Term)
	return core.Validate.Struct(rs)
}

// RegistrationResult reports which subjects were registered and which were
// skipped, with reasons.
type RegistrationResult struct {
	Registered []string `json:"registered"`
	Skipped    []string `json:"skipped"`
}

// NewSubjectModule contains information needed to add a roadmap milestone.
type NewSubjectModule struct {
	ClassID     string `json:"class_id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Order       int    `json:"order" validate:"min=0"`
}

func (nm *NewSubjectModule) Validate() error {
	nm.Title = core.CleanString(nm.Title)
	nm.Description = core.CleanString(nm.Description)
	return core.Validate.Struct(nm)
}

// NewLiveSession contains information needed to schedule a live session.
type NewLiveSession struct {
	ClassID     string    `json:"class_id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	MeetingURL  string    `json:"meeting_url" validate:"omitempty,url"`
}

func (ns *NewLiveSession) Validate() error {
	ns.Title = core.CleanString(ns.Title)
	ns.Description = core.CleanString(ns.Description)
	return core.Validate.Struct(ns)
}

type NewSessionMessage struct {
	Content string `json:"content" validate:"required"`
}

func (nm *NewSessionMessage) Validate() error {
	nm.Content = core.CleanString(nm.Content)
	return core.Validate.Struct(nm)
}

// Course is a registered subject as listed on the student's course page.
type Course struct {
	ClassID         string  `json:"class_id"`
	Subject         string  `json:"subject"`
	Type            string  `json:"type"`
	TeacherName     string  `json:"teacher_name"`
	AverageProgress float64 `json:"average_progress"`
}

// AvailableSubject is an open class the student may register for.
type AvailableSubject struct {
	ClassID      string `json:"class_id"`
	Subject      string `json:"subject"`
	Type         string `json:"type"`
	TeacherName  string `json:"teacher_name"`
	IsRegistered bool   `json:"is_registered"`
}

// SubjectProgress is the student's standing in one registered subject.
// Grade and Progress are nil until a grade is recorded.
type SubjectProgress struct {
	Subject      string    `json:"subject"`
	Grade        *float64  `json:"grade"`
	Progress     *float64  `json:"progress"`
	SessionYear  string    `json:"session_year"`
	Term         string    `json:"term"`
	RegisteredAt time.Time `json:"registered_at"`
	ClassCount   int       `json:"class_count"`
}

// SubjectsProgress is the per-subject progress overview.
type SubjectsProgress struct {
	Subjects      []SubjectProgress `json:"subjects"`
	TotalSubjects int               `json:"total_subjects"`
}

// RoadmapItem summarizes one registered class on the student's roadmap.
type RoadmapItem struct {
	ClassID   string `json:"class_id"`
	Subject   string `json:"subject"`
	Status    string `json:"status"`
	Duration  string `json:"duration"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// RoadmapDetail is a roadmap item expanded with its ordered milestones.
type RoadmapDetail struct {
	RoadmapItem
	Modules []SubjectModule `json:"modules"`
}

// SessionDetail is a live session expanded with its participants.
type SessionDetail struct {
	LiveSession
	CanJoin          bool        `json:"can_join"`
	Participants     []user.User `json:"participants"`
	ParticipantCount int         `json:"participant_count"`
}

// SessionListItem is a live session as shown on the sessions list.
type SessionListItem struct {
	LiveSession
	CanJoin bool `json:"can_join"`
}

// MessageListItem is a session message flagged with whether the caller sent it.
type MessageListItem struct {
	SessionMessage
	IsMe bool `json:"is_me"`
}
