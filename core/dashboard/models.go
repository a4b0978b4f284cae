package dashboard

import (
	"time"

	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/user"
)

// Attendance statuses
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
	AttendanceExcused = "excused"
)

// Fee statuses
const (
	FeePending = "pending"
	FeePaid    = "paid"
	FeeOverdue = "overdue"
)

// AcademicProgress is the student's recorded academic standing. Grades are
// per-subject percentages.
type AcademicProgress struct {
	StudentID     string             `json:"student_id"`
	CGPA          float64            `json:"cgpa,omitempty"`
	GPA           float64            `json:"gpa,omitempty"`
	Grades        map[string]float64 `json:"grades,omitempty"`
	CreditsEarned int                `json:"credits_earned,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"` // UTC
}

// ProgressPercentage averages the recorded subject grades verbatim.
func (p AcademicProgress) ProgressPercentage() float64 {
	if len(p.Grades) == 0 {
		return 0
	}
	var sum float64
	for _, g := range p.Grades {
		sum += g
	}
	return sum / float64(len(p.Grades))
}

// SemesterResult is one semester's outcome for university students.
type SemesterResult struct {
	StudentID string  `json:"student_id"`
	Session   string  `json:"session"`
	Semester  string  `json:"semester"`
	GPA       float64 `json:"gpa"`
	Credits   int     `json:"credits"`
}

// AttendanceSummary aggregates a student's attendance records.
type AttendanceSummary struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
}

func (s AttendanceSummary) Total() int {
	return s.Present + s.Absent + s.Late + s.Excused
}

// Percentage counts present and late days as attended.
func (s AttendanceSummary) Percentage() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.Present+s.Late) / float64(total) * 100
}

// FeeTotals aggregates a student's fees by status.
type FeeTotals struct {
	Paid    float64 `json:"paid"`
	Pending float64 `json:"pending"`
	Overdue float64 `json:"overdue"`
}

type Payment struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	PaidAt      time.Time `json:"paid_at"` // UTC
}

type ForumTopic struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	AuthorName string    `json:"author_name"`
	Replies    int       `json:"replies"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

type Event struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	StartsAt time.Time `json:"starts_at"` // UTC
}

// ActivityLog is one entry of the recent-activity feed.
type ActivityLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// GenderCount splits a student head count by gender.
type GenderCount struct {
	Total  int `json:"total"`
	Male   int `json:"male"`
	Female int `json:"female"`
	Other  int `json:"other"`
}

// NextClass is the student's next scheduled class of the day.
type NextClass struct {
	ClassID     string `json:"class_id"`
	Subject     string `json:"subject"`
	TeacherName string `json:"teacher_name"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

// UpcomingActivity is an activity nearing its due date.
type UpcomingActivity struct {
	ActivityID string    `json:"activity_id"`
	Title      string    `json:"title"`
	Type       string    `json:"type"`
	Subject    string    `json:"subject"`
	DueDate    time.Time `json:"due_date"` // UTC
}

// ProgressView is the dashboard rendering of AcademicProgress.
type ProgressView struct {
	AcademicProgress
	ProgressPercentage float64 `json:"progress_percentage"`
}

// SecondaryStudentDashboard aggregates the secondary student home screen.
type SecondaryStudentDashboard struct {
	Profile            user.Student       `json:"profile"`
	NextClass          *NextClass         `json:"next_class,omitempty"`
	UpcomingActivities []UpcomingActivity `json:"upcoming_activities"`
	UpcomingTests      []UpcomingActivity `json:"upcoming_tests"`
	Progress           ProgressView       `json:"progress"`
	Reminders          []academic.Reminder `json:"reminders"`
	ForumTopics        []ForumTopic       `json:"forum_topics"`
	Events             []Event            `json:"events"`
}

// UniversityStudentDashboard aggregates the university student home screen.
type UniversityStudentDashboard struct {
	NextClass          *NextClass         `json:"next_class,omitempty"`
	UpcomingActivities []UpcomingActivity `json:"upcoming_activities"`
	UpcomingTests      []UpcomingActivity `json:"upcoming_tests"`
	CGPA               float64            `json:"cgpa"`
	SemesterResults    []SemesterResult   `json:"semester_results"`
	Reminders          []academic.Reminder `json:"reminders"`
	Events             []Event            `json:"events"`
}

// TeacherDashboard aggregates the teacher home screen.
type TeacherDashboard struct {
	TodayClasses   []academic.Class `json:"today_classes"`
	ActiveStudents GenderCount      `json:"active_students"`
	PendingGrades  int              `json:"pending_grades"`
	RecentActivity []ActivityLog    `json:"recent_activity"`
}

// ParentDashboard aggregates the parent home screen, built around the
// first registered child.
type ParentDashboard struct {
	Child          user.Student      `json:"child"`
	Attendance     AttendanceSummary `json:"attendance"`
	AttendanceRate float64           `json:"attendance_rate"`
	Fees           FeeTotals         `json:"fees"`
	UnreadMessages int               `json:"unread_messages"`
	RecentPayments []Payment         `json:"recent_payments"`
}
