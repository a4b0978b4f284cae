package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/user"
)

type academicRepository struct {
	db *DB
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *DB) academic.Repository {
	return &academicRepository{db: db}
}

func (repo *academicRepository) withTeacher(class academic.Class) academic.Class {
	if usr, ok := repo.db.users[class.TeacherID]; ok {
		class.Teacher = *usr
	}
	return class
}

func (repo *academicRepository) GetClassByID(_ context.Context, id string) (academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if class, ok := repo.db.classes[id]; ok {
		return repo.withTeacher(*class), nil
	}
	return academic.Class{}, academic.ErrClassNotFound
}

func (repo *academicRepository) QueryActiveClassesByGrade(_ context.Context, grade string) ([]academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var classes []academic.Class
	for _, class := range repo.db.classes {
		if class.IsActive && class.GradeLevel == grade {
			classes = append(classes, repo.withTeacher(*class))
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Subject < classes[j].Subject })
	return classes, nil
}

func (repo *academicRepository) GetActiveClassBySubjectAndGrade(_ context.Context, subject, grade string) (academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, class := range repo.db.classes {
		if class.IsActive && class.GradeLevel == grade && strings.EqualFold(class.Subject, subject) {
			return repo.withTeacher(*class), nil
		}
	}
	return academic.Class{}, academic.ErrClassNotFound
}

func (repo *academicRepository) CreateRegistration(_ context.Context, reg academic.StudentClassRegistration) (academic.StudentClassRegistration, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// enforce one registration per (student, class, session, term)
	for _, existing := range repo.db.registrations {
		if existing.StudentID == reg.StudentID && existing.ClassID == reg.ClassID &&
			existing.SessionYear == reg.SessionYear && existing.Term == reg.Term {
			return academic.StudentClassRegistration{}, academic.ErrAlreadyRegistered
		}
	}
	repo.db.registrations[reg.ID] = &reg
	return reg, nil
}

func (repo *academicRepository) RegistrationExists(_ context.Context, studentID, classID, sessionYear, term string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, reg := range repo.db.registrations {
		if reg.StudentID == studentID && reg.ClassID == classID && reg.SessionYear == sessionYear && reg.Term == term {
			return true, nil
		}
	}
	return false, nil
}

func (repo *academicRepository) QueryRegistrationsByStudent(_ context.Context, studentID string) ([]academic.StudentClassRegistration, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var regs []academic.StudentClassRegistration
	for _, reg := range repo.db.registrations {
		if reg.StudentID != studentID {
			continue
		}
		r := *reg
		if class, ok := repo.db.classes[r.ClassID]; ok {
			r.Class = repo.withTeacher(*class)
		}
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].CreatedAt.Before(regs[j].CreatedAt) })
	return regs, nil
}

func (repo *academicRepository) AddStudentToClass(_ context.Context, classID, studentID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.db.classStudents[classID] == nil {
		repo.db.classStudents[classID] = make(map[string]bool)
	}
	repo.db.classStudents[classID][studentID] = true
	return nil
}

func (repo *academicRepository) IsStudentInClass(_ context.Context, classID, studentID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.classStudents[classID][studentID], nil
}

func (repo *academicRepository) GetStudentClassAverage(_ context.Context, studentID, classID string) (float64, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var sum, count float64
	for _, att := range repo.db.attempts {
		if att.StudentID != studentID || !isFinalStatus(att.Status) {
			continue
		}
		act, ok := repo.db.activities[att.ActivityID]
		if !ok || act.ClassID != classID || act.TotalPoints == 0 {
			continue
		}
		sum += float64(att.Score) / float64(act.TotalPoints) * 100
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return sum / count, nil
}

func isFinalStatus(status string) bool {
	return status == "submitted" || status == "graded" || status == "late"
}

func (repo *academicRepository) GetStudentGrades(_ context.Context, studentID string) (map[string]float64, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	progress, ok := repo.db.progress[studentID]
	if !ok {
		return nil, nil
	}
	grades := make(map[string]float64, len(progress.Grades))
	for subject, grade := range progress.Grades {
		grades[subject] = grade
	}
	return grades, nil
}

func (repo *academicRepository) CountActiveClassesBySubject(_ context.Context) (map[string]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	counts := make(map[string]int)
	for _, class := range repo.db.classes {
		if class.IsActive {
			counts[class.Subject]++
		}
	}
	return counts, nil
}

func (repo *academicRepository) CreateSubjectModule(_ context.Context, mod academic.SubjectModule) (academic.SubjectModule, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.modules[mod.ID] = &mod
	return mod, nil
}

func (repo *academicRepository) QuerySubjectModulesByClass(_ context.Context, classID string) ([]academic.SubjectModule, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var modules []academic.SubjectModule
	for _, mod := range repo.db.modules {
		if mod.ClassID == classID {
			modules = append(modules, *mod)
		}
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Order < modules[j].Order })
	return modules, nil
}

func (repo *academicRepository) CreateLiveSession(_ context.Context, sess academic.LiveSession) (academic.LiveSession, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.sessions[sess.ID] = &sess
	return sess, nil
}

func (repo *academicRepository) GetLiveSession(_ context.Context, id string) (academic.LiveSession, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sess, ok := repo.db.sessions[id]; ok {
		s := *sess
		if class, ok := repo.db.classes[s.ClassID]; ok {
			s.Class = repo.withTeacher(*class)
		}
		return s, nil
	}
	return academic.LiveSession{}, academic.ErrSessionNotFound
}

func (repo *academicRepository) QueryUpcomingSessionsByClassIDs(_ context.Context, classIDs []string, now time.Time) ([]academic.LiveSession, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wanted := make(map[string]bool, len(classIDs))
	for _, id := range classIDs {
		wanted[id] = true
	}

	var sessions []academic.LiveSession
	for _, sess := range repo.db.sessions {
		if !wanted[sess.ClassID] {
			continue
		}
		if sess.Status == academic.SessionCancelled || now.After(sess.EndTime) {
			continue
		}
		s := *sess
		if class, ok := repo.db.classes[s.ClassID]; ok {
			s.Class = repo.withTeacher(*class)
		}
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartTime.Before(sessions[j].StartTime) })
	return sessions, nil
}

func (repo *academicRepository) AddSessionParticipant(_ context.Context, sessionID, userID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.db.sessionParticipants[sessionID] == nil {
		repo.db.sessionParticipants[sessionID] = make(map[string]bool)
	}
	repo.db.sessionParticipants[sessionID][userID] = true
	return nil
}

func (repo *academicRepository) RemoveSessionParticipant(_ context.Context, sessionID, userID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.sessionParticipants[sessionID], userID)
	return nil
}

func (repo *academicRepository) IsSessionParticipant(_ context.Context, sessionID, userID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.sessionParticipants[sessionID][userID], nil
}

func (repo *academicRepository) QuerySessionParticipants(_ context.Context, sessionID string) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var users []user.User
	for userID := range repo.db.sessionParticipants[sessionID] {
		if usr, ok := repo.db.users[userID]; ok {
			users = append(users, *usr)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (repo *academicRepository) CreateSessionMessage(_ context.Context, msg academic.SessionMessage) (academic.SessionMessage, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.sessionMessages[msg.ID] = &msg
	return msg, nil
}

func (repo *academicRepository) QuerySessionMessages(_ context.Context, sessionID string) ([]academic.SessionMessage, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var msgs []academic.SessionMessage
	for _, msg := range repo.db.sessionMessages {
		if msg.SessionID == sessionID {
			msgs = append(msgs, *msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

func (repo *academicRepository) CreateReminder(_ context.Context, rem academic.Reminder) (academic.Reminder, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.reminders[rem.ID] = &rem
	return rem, nil
}

func (repo *academicRepository) ReminderExists(_ context.Context, userID, sessionID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, rem := range repo.db.reminders {
		if rem.UserID == userID && rem.SessionID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *academicRepository) QueryMaterialsByClass(_ context.Context, classID string) ([]academic.LearningMaterial, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var materials []academic.LearningMaterial
	for _, material := range repo.db.materials {
		if material.ClassID == classID {
			materials = append(materials, *material)
		}
	}
	sort.Slice(materials, func(i, j int) bool { return materials[i].CreatedAt.Before(materials[j].CreatedAt) })
	return materials, nil
}

func (repo *academicRepository) GetLearningMaterial(_ context.Context, id string) (academic.LearningMaterial, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if material, ok := repo.db.materials[id]; ok {
		return *material, nil
	}
	return academic.LearningMaterial{}, academic.ErrMaterialNotFound
}

func (repo *academicRepository) IncrementMaterialViews(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	material, ok := repo.db.materials[id]
	if !ok {
		return academic.ErrMaterialNotFound
	}
	material.Views++
	return nil
}

func (repo *academicRepository) QueryLectureNotes(_ context.Context, materialID string) ([]academic.LectureNote, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var notes []academic.LectureNote
	for _, note := range repo.db.lectureNotes {
		if note.MaterialID != materialID {
			continue
		}
		n := *note
		for _, sect := range repo.db.noteSections {
			if sect.NoteID == n.ID {
				n.Sections = append(n.Sections, *sect)
			}
		}
		sort.Slice(n.Sections, func(i, j int) bool { return n.Sections[i].Order < n.Sections[j].Order })
		notes = append(notes, n)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Order < notes[j].Order })
	return notes, nil
}
