// Package inmemdb holds in-memory repository implementations used by tests
// and local development.
package inmemdb

import (
	"sync"

	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/activity"
	"github.com/darasahq/darasa/core/dashboard"
	"github.com/darasahq/darasa/core/user"
)

type DB struct {
	mu sync.RWMutex

	users       map[string]*user.User
	students    map[string]*user.Student
	blacklist   map[string]*user.BlacklistedToken   // keyed by token
	resetTokens map[string]*user.PasswordResetToken // keyed by token

	classes             map[string]*academic.Class
	registrations       map[string]*academic.StudentClassRegistration
	classStudents       map[string]map[string]bool // classID -> studentID set
	modules             map[string]*academic.SubjectModule
	sessions            map[string]*academic.LiveSession
	sessionParticipants map[string]map[string]bool // sessionID -> userID set
	sessionMessages     map[string]*academic.SessionMessage
	reminders           map[string]*academic.Reminder
	materials           map[string]*academic.LearningMaterial
	lectureNotes        map[string]*academic.LectureNote
	noteSections        map[string]*academic.LectureNoteSection

	activities         map[string]*activity.ClassActivity
	questions          map[string]*activity.Question
	attempts           map[string]*activity.StudentClassActivity
	assignments        map[string]*activity.Assignment
	assignmentStudents map[string]map[string]bool // assignmentID -> studentID set
	submissions        map[string]*activity.StudentAssignment

	progress        map[string]*dashboard.AcademicProgress // keyed by studentID
	semesterResults map[string][]dashboard.SemesterResult
	attendance      map[string]dashboard.AttendanceSummary
	feeTotals       map[string]dashboard.FeeTotals
	unreadMessages  map[string]int // keyed by userID
	payments        map[string][]dashboard.Payment
	forumTopics     []dashboard.ForumTopic
	events          []dashboard.Event
	activityLogs    []dashboard.ActivityLog
}

func Open() (*DB, error) {
	db := &DB{
		users:       make(map[string]*user.User),
		students:    make(map[string]*user.Student),
		blacklist:   make(map[string]*user.BlacklistedToken),
		resetTokens: make(map[string]*user.PasswordResetToken),

		classes:             make(map[string]*academic.Class),
		registrations:       make(map[string]*academic.StudentClassRegistration),
		classStudents:       make(map[string]map[string]bool),
		modules:             make(map[string]*academic.SubjectModule),
		sessions:            make(map[string]*academic.LiveSession),
		sessionParticipants: make(map[string]map[string]bool),
		sessionMessages:     make(map[string]*academic.SessionMessage),
		reminders:           make(map[string]*academic.Reminder),
		materials:           make(map[string]*academic.LearningMaterial),
		lectureNotes:        make(map[string]*academic.LectureNote),
		noteSections:        make(map[string]*academic.LectureNoteSection),

		activities:         make(map[string]*activity.ClassActivity),
		questions:          make(map[string]*activity.Question),
		attempts:           make(map[string]*activity.StudentClassActivity),
		assignments:        make(map[string]*activity.Assignment),
		assignmentStudents: make(map[string]map[string]bool),
		submissions:        make(map[string]*activity.StudentAssignment),

		progress:        make(map[string]*dashboard.AcademicProgress),
		semesterResults: make(map[string][]dashboard.SemesterResult),
		attendance:      make(map[string]dashboard.AttendanceSummary),
		feeTotals:       make(map[string]dashboard.FeeTotals),
		unreadMessages:  make(map[string]int),
		payments:        make(map[string][]dashboard.Payment),
	}
	return db, nil
}

// Seed helpers for test fixtures.

func (db *DB) SeedClass(class academic.Class) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.classes[class.ID] = &class
}

func (db *DB) SeedLiveSession(sess academic.LiveSession) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.sessions[sess.ID] = &sess
}

func (db *DB) SeedMaterial(material academic.LearningMaterial, notes ...academic.LectureNote) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.materials[material.ID] = &material
	for _, note := range notes {
		note := note
		sections := note.Sections
		note.Sections = nil
		db.lectureNotes[note.ID] = &note
		for _, sect := range sections {
			sect := sect
			if sect.NoteID == "" {
				sect.NoteID = note.ID
			}
			db.noteSections[sect.ID] = &sect
		}
	}
}

func (db *DB) SeedAcademicProgress(p dashboard.AcademicProgress) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.progress[p.StudentID] = &p
}

func (db *DB) SeedSemesterResult(r dashboard.SemesterResult) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.semesterResults[r.StudentID] = append(db.semesterResults[r.StudentID], r)
}

func (db *DB) SeedAttendance(studentID string, summary dashboard.AttendanceSummary) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.attendance[studentID] = summary
}

func (db *DB) SeedFeeTotals(studentID string, totals dashboard.FeeTotals) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.feeTotals[studentID] = totals
}

func (db *DB) SeedUnreadMessages(userID string, count int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.unreadMessages[userID] = count
}

func (db *DB) SeedPayment(p dashboard.Payment) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.payments[p.StudentID] = append(db.payments[p.StudentID], p)
}

func (db *DB) SeedForumTopic(t dashboard.ForumTopic) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.forumTopics = append(db.forumTopics, t)
}

func (db *DB) SeedEvent(e dashboard.Event) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.events = append(db.events, e)
}
