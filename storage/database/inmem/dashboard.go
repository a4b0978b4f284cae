package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/activity"
	"github.com/darasahq/darasa/core/dashboard"
)

type dashboardRepository struct {
	db *DB
}

var _ dashboard.Repository = (*dashboardRepository)(nil) // interface compliance check

func NewDashboardRepository(db *DB) dashboard.Repository {
	return &dashboardRepository{db: db}
}

// studentClasses returns the registered classes of a student.
// Callers must hold db.mu.
func (repo *dashboardRepository) studentClasses(studentID string) []*academic.Class {
	var classes []*academic.Class
	for _, reg := range repo.db.registrations {
		if reg.StudentID != studentID {
			continue
		}
		if class, ok := repo.db.classes[reg.ClassID]; ok {
			classes = append(classes, class)
		}
	}
	return classes
}

func (repo *dashboardRepository) GetNextClass(_ context.Context, studentID string, now time.Time) (dashboard.NextClass, bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	nowClock := now.Format("15:04")

	var next *academic.Class
	for _, class := range repo.studentClasses(studentID) {
		if !class.IsActive || class.StartTime <= nowClock {
			continue
		}
		if next == nil || class.StartTime < next.StartTime {
			next = class
		}
	}
	if next == nil {
		return dashboard.NextClass{}, false, nil
	}

	nc := dashboard.NextClass{
		ClassID:   next.ID,
		Subject:   next.Subject,
		StartTime: next.StartTime,
		EndTime:   next.EndTime,
	}
	if teacher, ok := repo.db.users[next.TeacherID]; ok {
		nc.TeacherName = teacher.Name()
	}
	return nc, true, nil
}

func (repo *dashboardRepository) QueryUpcomingActivities(_ context.Context, studentID string, now time.Time, limit int, types ...string) ([]dashboard.UpcomingActivity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subjects := make(map[string]string)
	for _, class := range repo.studentClasses(studentID) {
		subjects[class.ID] = class.Subject
	}

	var upcoming []dashboard.UpcomingActivity
	for _, act := range repo.db.activities {
		subject, registered := subjects[act.ClassID]
		if !registered || !act.DueDate.After(now) {
			continue
		}
		if len(types) > 0 && !matchesType(act, types) {
			continue
		}
		upcoming = append(upcoming, dashboard.UpcomingActivity{
			ActivityID: act.ID,
			Title:      act.Title,
			Type:       act.Type,
			Subject:    subject,
			DueDate:    act.DueDate,
		})
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].DueDate.Before(upcoming[j].DueDate) })
	if len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	return upcoming, nil
}

func matchesType(act *activity.ClassActivity, types []string) bool {
	for _, t := range types {
		if strings.EqualFold(act.Type, t) {
			return true
		}
	}
	return false
}

func (repo *dashboardRepository) GetAcademicProgress(_ context.Context, studentID string) (dashboard.AcademicProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.progress[studentID]; ok {
		return *p, nil
	}
	return dashboard.AcademicProgress{StudentID: studentID}, nil
}

func (repo *dashboardRepository) QuerySemesterResults(_ context.Context, studentID string) ([]dashboard.SemesterResult, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	results := make([]dashboard.SemesterResult, len(repo.db.semesterResults[studentID]))
	copy(results, repo.db.semesterResults[studentID])
	return results, nil
}

func (repo *dashboardRepository) QueryReminders(_ context.Context, userID string, now time.Time, limit int) ([]academic.Reminder, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var reminders []academic.Reminder
	for _, rem := range repo.db.reminders {
		if rem.UserID == userID && rem.RemindAt.After(now) {
			reminders = append(reminders, *rem)
		}
	}
	sort.Slice(reminders, func(i, j int) bool { return reminders[i].RemindAt.Before(reminders[j].RemindAt) })
	if len(reminders) > limit {
		reminders = reminders[:limit]
	}
	return reminders, nil
}

func (repo *dashboardRepository) QueryLatestForumTopics(_ context.Context, limit int) ([]dashboard.ForumTopic, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	topics := make([]dashboard.ForumTopic, len(repo.db.forumTopics))
	copy(topics, repo.db.forumTopics)
	sort.Slice(topics, func(i, j int) bool { return topics[i].CreatedAt.After(topics[j].CreatedAt) })
	if len(topics) > limit {
		topics = topics[:limit]
	}
	return topics, nil
}

func (repo *dashboardRepository) QueryUpcomingEvents(_ context.Context, now time.Time, limit int) ([]dashboard.Event, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var events []dashboard.Event
	for _, e := range repo.db.events {
		if e.StartsAt.After(now) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (repo *dashboardRepository) QueryTodayClasses(_ context.Context, teacherID string, now time.Time) ([]academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var classes []academic.Class
	for _, class := range repo.db.classes {
		if class.TeacherID != teacherID || !class.IsActive {
			continue
		}
		if now.Before(class.StartDate) || now.After(class.EndDate) {
			continue
		}
		cls := *class
		if teacher, ok := repo.db.users[class.TeacherID]; ok {
			cls.Teacher = *teacher
		}
		classes = append(classes, cls)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].StartTime < classes[j].StartTime })
	return classes, nil
}

func (repo *dashboardRepository) CountActiveStudentsByTeacher(_ context.Context, teacherID string) (dashboard.GenderCount, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	seen := make(map[string]bool)
	var count dashboard.GenderCount
	for classID, class := range repo.db.classes {
		if class.TeacherID != teacherID || !class.IsActive {
			continue
		}
		for studentID := range repo.db.classStudents[classID] {
			if seen[studentID] {
				continue
			}
			seen[studentID] = true

			st, ok := repo.db.students[studentID]
			if !ok {
				continue
			}
			count.Total++
			switch strings.ToLower(st.Gender) {
			case "male", "m":
				count.Male++
			case "female", "f":
				count.Female++
			default:
				count.Other++
			}
		}
	}
	return count, nil
}

func (repo *dashboardRepository) CountPendingGrades(_ context.Context, teacherID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	teacherClasses := make(map[string]bool)
	for _, class := range repo.db.classes {
		if class.TeacherID == teacherID {
			teacherClasses[class.ID] = true
		}
	}

	pendingAssignments := make(map[string]bool)
	for _, asg := range repo.db.assignments {
		if teacherClasses[asg.ClassID] {
			pendingAssignments[asg.ID] = true
		}
	}

	count := 0
	for _, sub := range repo.db.submissions {
		if pendingAssignments[sub.AssignmentID] && sub.Status == activity.StatusSubmitted {
			count++
		}
	}
	return count, nil
}

func (repo *dashboardRepository) QueryRecentActivityLogs(_ context.Context, userID string, limit int) ([]dashboard.ActivityLog, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var logs []dashboard.ActivityLog
	for _, entry := range repo.db.activityLogs {
		if entry.UserID == userID {
			logs = append(logs, entry)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (repo *dashboardRepository) CreateActivityLog(_ context.Context, entry dashboard.ActivityLog) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.activityLogs = append(repo.db.activityLogs, entry)
	return nil
}

func (repo *dashboardRepository) GetAttendanceSummary(_ context.Context, studentID string) (dashboard.AttendanceSummary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.attendance[studentID], nil
}

func (repo *dashboardRepository) GetFeeTotals(_ context.Context, studentID string) (dashboard.FeeTotals, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.feeTotals[studentID], nil
}

func (repo *dashboardRepository) CountUnreadMessages(_ context.Context, userID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.unreadMessages[userID], nil
}

func (repo *dashboardRepository) QueryRecentPayments(_ context.Context, studentID string, limit int) ([]dashboard.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	payments := make([]dashboard.Payment, len(repo.db.payments[studentID]))
	copy(payments, repo.db.payments[studentID])
	sort.Slice(payments, func(i, j int) bool { return payments[i].PaidAt.After(payments[j].PaidAt) })
	if len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}
