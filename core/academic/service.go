package academic

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrClassNotFound     = core.NewNotFoundError("class not found")
	ErrSessionNotFound   = core.NewNotFoundError("live session not found")
	ErrMaterialNotFound  = core.NewNotFoundError("learning material not found")
	ErrNotRegistered     = core.NewForbiddenError("not registered for this class")
	ErrNotClassTeacher   = core.NewForbiddenError("not the teacher of this class")
	ErrAlreadyRegistered = core.NewConflictError("already registered for this class")
	ErrSessionEnded      = core.NewConflictError("live session has already ended")
	ErrReminderExists    = core.NewConflictError("reminder already scheduled for this session")
	ErrNoneRegistered    = errors.New("no subjects could be registered")
)

type (
	Repository interface {
		GetClassByID(ctx context.Context, id string) (Class, error)
		QueryActiveClassesByGrade(ctx context.Context, grade string) ([]Class, error)
		GetActiveClassBySubjectAndGrade(ctx context.Context, subject, grade string) (Class, error)

		CreateRegistration(ctx context.Context, reg StudentClassRegistration) (StudentClassRegistration, error)
		RegistrationExists(ctx context.Context, studentID, classID, sessionYear, term string) (bool, error)
		// QueryRegistrationsByStudent returns registrations with Class populated.
		QueryRegistrationsByStudent(ctx context.Context, studentID string) ([]StudentClassRegistration, error)
		AddStudentToClass(ctx context.Context, classID, studentID string) error
		IsStudentInClass(ctx context.Context, classID, studentID string) (bool, error)
		// GetStudentClassAverage averages the student's graded activity scores
		// for the class, as a percentage. 0 when nothing is graded yet.
		GetStudentClassAverage(ctx context.Context, studentID, classID string) (float64, error)
		// GetStudentGrades returns the student's recorded grades keyed by subject.
		GetStudentGrades(ctx context.Context, studentID string) (map[string]float64, error)
		CountActiveClassesBySubject(ctx context.Context) (map[string]int, error)

		CreateSubjectModule(ctx context.Context, mod SubjectModule) (SubjectModule, error)
		QuerySubjectModulesByClass(ctx context.Context, classID string) ([]SubjectModule, error)

		CreateLiveSession(ctx context.Context, sess LiveSession) (LiveSession, error)
		GetLiveSession(ctx context.Context, id string) (LiveSession, error)
		QueryUpcomingSessionsByClassIDs(ctx context.Context, classIDs []string, now time.Time) ([]LiveSession, error)
		AddSessionParticipant(ctx context.Context, sessionID, userID string) error
		RemoveSessionParticipant(ctx context.Context, sessionID, userID string) error
		IsSessionParticipant(ctx context.Context, sessionID, userID string) (bool, error)
		QuerySessionParticipants(ctx context.Context, sessionID string) ([]user.User, error)
		CreateSessionMessage(ctx context.Context, msg SessionMessage) (SessionMessage, error)
		QuerySessionMessages(ctx context.Context, sessionID string) ([]SessionMessage, error)

		CreateReminder(ctx context.Context, rem Reminder) (Reminder, error)
		ReminderExists(ctx context.Context, userID, sessionID string) (bool, error)

		QueryMaterialsByClass(ctx context.Context, classID string) ([]LearningMaterial, error)
		GetLearningMaterial(ctx context.Context, id string) (LearningMaterial, error)
		IncrementMaterialViews(ctx context.Context, id string) error
		// QueryLectureNotes returns notes with their ordered sections.
		QueryLectureNotes(ctx context.Context, materialID string) ([]LectureNote, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AvailableSubjects lists the open classes for the student's grade, flagging
// the ones they already registered for.
func (svc *Service) AvailableSubjects(ctx context.Context, st user.Student) ([]AvailableSubject, error) {
	classes, err := svc.repo.QueryActiveClassesByGrade(ctx, st.Grade)
	if err != nil {
		return nil, errors.Wrap(err, "querying active classes")
	}
	regs, err := svc.repo.QueryRegistrationsByStudent(ctx, st.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}
	registered := make(map[string]bool, len(regs))
	for _, reg := range regs {
		registered[reg.ClassID] = true
	}

	subjects := make([]AvailableSubject, 0, len(classes))
	for _, class := range classes {
		subjects = append(subjects, AvailableSubject{
			ClassID:      class.ID,
			Subject:      class.Subject,
			Type:         class.Type,
			TeacherName:  class.Teacher.Name(),
			IsRegistered: registered[class.ID],
		})
	}
	return subjects, nil
}

// RegisterSubjects registers the student for each requested subject
// independently. Subjects without an open class for the student's grade, or
// already registered for the session/term, land on the skipped list with a
// reason. It only fails outright when nothing could be registered.
func (svc *Service) RegisterSubjects(ctx context.Context, st user.Student, rs RegisterSubjects) (RegistrationResult, error) {
	res := RegistrationResult{
		Registered: make([]string, 0, len(rs.Subjects)),
		Skipped:    make([]string, 0),
	}

	for _, subject := range rs.Subjects {
		class, err := svc.repo.GetActiveClassBySubjectAndGrade(ctx, subject, st.Grade)
		if err != nil {
			if core.IsNotFound(errors.Cause(err)) {
				res.Skipped = append(res.Skipped, fmt.Sprintf("%s - No active class found for %s", subject, st.Grade))
				continue
			}
			return RegistrationResult{}, errors.Wrap(err, "finding class")
		}

		exists, err := svc.repo.RegistrationExists(ctx, st.ID, class.ID, rs.SessionYear, rs.Term)
		if err != nil {
			return RegistrationResult{}, errors.Wrap(err, "checking registration")
		}
		if exists {
			res.Skipped = append(res.Skipped, fmt.Sprintf("%s - already registered", subject))
			continue
		}

		reg := StudentClassRegistration{
			ID:          uuid.New().String(),
			StudentID:   st.ID,
			ClassID:     class.ID,
			SessionYear: rs.SessionYear,
			Term:        rs.Term,
			CreatedAt:   NowFunc().UTC(),
		}
		if _, err = svc.repo.CreateRegistration(ctx, reg); err != nil {
			// lost a concurrent registration for the same session/term
			if errors.Cause(err) == ErrAlreadyRegistered {
				res.Skipped = append(res.Skipped, fmt.Sprintf("%s - already registered", subject))
				continue
			}
			return RegistrationResult{}, errors.Wrap(err, "creating registration")
		}
		if err = svc.repo.AddStudentToClass(ctx, class.ID, st.ID); err != nil {
			return RegistrationResult{}, errors.Wrap(err, "enrolling student")
		}
		res.Registered = append(res.Registered, subject)
	}

	if len(res.Registered) == 0 {
		return res, core.NewValidationError(ErrNoneRegistered)
	}
	return res, nil
}

// Courses lists the student's registered subjects with their average progress.
func (svc *Service) Courses(ctx context.Context, st user.Student) ([]Course, error) {
	regs, err := svc.repo.QueryRegistrationsByStudent(ctx, st.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}

	courses := make([]Course, 0, len(regs))
	for _, reg := range regs {
		avg, err := svc.repo.GetStudentClassAverage(ctx, st.ID, reg.ClassID)
		if err != nil {
			return nil, errors.Wrap(err, "getting class average")
		}
		courses = append(courses, Course{
			ClassID:         reg.ClassID,
			Subject:         reg.Class.Subject,
			Type:            reg.Class.Type,
			TeacherName:     reg.Class.Teacher.Name(),
			AverageProgress: avg,
		})
	}
	return courses, nil
}

// SubjectsProgress summarizes the student's standing per registered subject,
// keeping the latest registration when a subject was taken over several terms.
func (svc *Service) SubjectsProgress(ctx context.Context, st user.Student) (SubjectsProgress, error) {
	regs, err := svc.repo.QueryRegistrationsByStudent(ctx, st.ID)
	if err != nil {
		return SubjectsProgress{}, errors.Wrap(err, "querying registrations")
	}

	latest := make(map[string]StudentClassRegistration, len(regs))
	for _, reg := range regs {
		if prev, ok := latest[reg.Class.Subject]; !ok || reg.CreatedAt.After(prev.CreatedAt) {
			latest[reg.Class.Subject] = reg
		}
	}

	grades, err := svc.repo.GetStudentGrades(ctx, st.ID)
	if err != nil {
		return SubjectsProgress{}, errors.Wrap(err, "querying grades")
	}
	classCounts, err := svc.repo.CountActiveClassesBySubject(ctx)
	if err != nil {
		return SubjectsProgress{}, errors.Wrap(err, "counting classes")
	}

	subjects := make([]SubjectProgress, 0, len(latest))
	for subject, reg := range latest {
		sp := SubjectProgress{
			Subject:      subject,
			SessionYear:  reg.SessionYear,
			Term:         reg.Term,
			RegisteredAt: reg.CreatedAt,
			ClassCount:   classCounts[subject],
		}
		if grade, ok := grades[subject]; ok {
			sp.Grade = &grade
			sp.Progress = &grade
		}
		subjects = append(subjects, sp)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Subject < subjects[j].Subject })

	return SubjectsProgress{Subjects: subjects, TotalSubjects: len(subjects)}, nil
}

// Roadmap lists the student's registered classes with term status and duration.
func (svc *Service) Roadmap(ctx context.Context, st user.Student) ([]RoadmapItem, error) {
	regs, err := svc.repo.QueryRegistrationsByStudent(ctx, st.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}

	now := NowFunc().UTC()
	items := make([]RoadmapItem, 0, len(regs))
	for _, reg := range regs {
		items = append(items, roadmapItem(reg.Class, now))
	}
	return items, nil
}

// RoadmapDetail expands one registered class with its ordered milestones.
func (svc *Service) RoadmapDetail(ctx context.Context, st user.Student, classID string) (RoadmapDetail, error) {
	registered, err := svc.repo.IsStudentInClass(ctx, classID, st.ID)
	if err != nil {
		return RoadmapDetail{}, errors.Wrap(err, "checking enrollment")
	}
	if !registered {
		return RoadmapDetail{}, ErrNotRegistered
	}

	class, err := svc.repo.GetClassByID(ctx, classID)
	if err != nil {
		return RoadmapDetail{}, errors.Wrap(err, "finding class")
	}
	modules, err := svc.repo.QuerySubjectModulesByClass(ctx, classID)
	if err != nil {
		return RoadmapDetail{}, errors.Wrap(err, "querying modules")
	}
	if modules == nil {
		modules = []SubjectModule{}
	}
	return RoadmapDetail{
		RoadmapItem: roadmapItem(class, NowFunc().UTC()),
		Modules:     modules,
	}, nil
}

func roadmapItem(class Class, now time.Time) RoadmapItem {
	return RoadmapItem{
		ClassID:   class.ID,
		Subject:   class.Subject,
		Status:    class.StatusAt(now),
		Duration:  class.Duration(),
		StartDate: class.StartDate.Format("2006-01-02"),
		EndDate:   class.EndDate.Format("2006-01-02"),
	}
}

// CreateSubjectModule adds a roadmap milestone to one of the teacher's classes.
func (svc *Service) CreateSubjectModule(ctx context.Context, teacher user.User, nm NewSubjectModule) (SubjectModule, error) {
	class, err := svc.repo.GetClassByID(ctx, nm.ClassID)
	if err != nil {
		return SubjectModule{}, errors.Wrap(err, "finding class")
	}
	if class.TeacherID != teacher.ID && !teacher.IsAdmin() {
		return SubjectModule{}, ErrNotClassTeacher
	}

	mod := SubjectModule{
		ID:          uuid.New().String(),
		ClassID:     nm.ClassID,
		Title:       nm.Title,
		Description: nm.Description,
		Order:       nm.Order,
		CreatedAt:   NowFunc().UTC(),
	}
	return svc.repo.CreateSubjectModule(ctx, mod)
}

// RegisteredClassIDs returns the IDs of st's registered classes.
func (svc *Service) RegisteredClassIDs(ctx context.Context, st user.Student) ([]string, error) {
	return svc.registeredClassIDs(ctx, st.ID)
}

// registeredClassIDs returns the IDs of the student's registered classes.
func (svc *Service) registeredClassIDs(ctx context.Context, studentID string) ([]string, error) {
	regs, err := svc.repo.QueryRegistrationsByStudent(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}
	ids := make([]string, 0, len(regs))
	for _, reg := range regs {
		ids = append(ids, reg.ClassID)
	}
	return ids, nil
}

// LiveSessions lists upcoming and ongoing sessions of the student's classes.
// The meeting URL is only exposed while a session is joinable.
func (svc *Service) LiveSessions(ctx context.Context, st user.Student) ([]SessionListItem, error) {
	classIDs, err := svc.registeredClassIDs(ctx, st.ID)
	if err != nil {
		return nil, err
	}

	now := NowFunc().UTC()
	sessions, err := svc.repo.QueryUpcomingSessionsByClassIDs(ctx, classIDs, now)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}

	items := make([]SessionListItem, 0, len(sessions))
	for _, sess := range sessions {
		canJoin := sess.IsJoinableAt(now)
		if !canJoin {
			sess.MeetingURL = ""
		}
		items = append(items, SessionListItem{LiveSession: sess, CanJoin: canJoin})
	}
	return items, nil
}

// LiveSessionDetail returns one session with its participants.
func (svc *Service) LiveSessionDetail(ctx context.Context, st user.Student, sessionID string) (SessionDetail, error) {
	sess, err := svc.getRegisteredSession(ctx, st, sessionID)
	if err != nil {
		return SessionDetail{}, err
	}

	participants, err := svc.repo.QuerySessionParticipants(ctx, sessionID)
	if err != nil {
		return SessionDetail{}, errors.Wrap(err, "querying participants")
	}
	if participants == nil {
		participants = []user.User{}
	}

	now := NowFunc().UTC()
	canJoin := sess.IsJoinableAt(now)
	if !canJoin {
		sess.MeetingURL = ""
	}
	return SessionDetail{
		LiveSession:      sess,
		CanJoin:          canJoin,
		Participants:     participants,
		ParticipantCount: len(participants),
	}, nil
}

func (svc *Service) getRegisteredSession(ctx context.Context, st user.Student, sessionID string) (LiveSession, error) {
	sess, err := svc.repo.GetLiveSession(ctx, sessionID)
	if err != nil {
		return LiveSession{}, errors.Wrap(err, "finding session")
	}
	registered, err := svc.repo.IsStudentInClass(ctx, sess.ClassID, st.ID)
	if err != nil {
		return LiveSession{}, errors.Wrap(err, "checking enrollment")
	}
	if !registered {
		return LiveSession{}, ErrNotRegistered
	}
	return sess, nil
}

// JoinLiveSession adds the student to the session participants. Joining
// twice is not an error.
func (svc *Service) JoinLiveSession(ctx context.Context, st user.Student, sessionID string) (string, error) {
	sess, err := svc.getRegisteredSession(ctx, st, sessionID)
	if err != nil {
		return "", err
	}
	if sess.HasEndedAt(NowFunc().UTC()) {
		return "", ErrSessionEnded
	}

	joined, err := svc.repo.IsSessionParticipant(ctx, sessionID, st.UserID)
	if err != nil {
		return "", errors.Wrap(err, "checking participant")
	}
	if joined {
		return "Already joined this session", nil
	}
	if err := svc.repo.AddSessionParticipant(ctx, sessionID, st.UserID); err != nil {
		return "", errors.Wrap(err, "adding participant")
	}
	return "Joined session successfully", nil
}

// LeaveLiveSession removes the student from the session participants.
// Leaving a session one never joined is not an error.
func (svc *Service) LeaveLiveSession(ctx context.Context, st user.Student, sessionID string) (string, error) {
	if _, err := svc.getRegisteredSession(ctx, st, sessionID); err != nil {
		return "", err
	}

	joined, err := svc.repo.IsSessionParticipant(ctx, sessionID, st.UserID)
	if err != nil {
		return "", errors.Wrap(err, "checking participant")
	}
	if !joined {
		return "Not a participant of this session", nil
	}
	if err := svc.repo.RemoveSessionParticipant(ctx, sessionID, st.UserID); err != nil {
		return "", errors.Wrap(err, "removing participant")
	}
	return "Left session successfully", nil
}

// ScheduleSessionReminder schedules a reminder at the session start time.
func (svc *Service) ScheduleSessionReminder(ctx context.Context, st user.Student, sessionID string) (Reminder, error) {
	sess, err := svc.getRegisteredSession(ctx, st, sessionID)
	if err != nil {
		return Reminder{}, err
	}
	now := NowFunc().UTC()
	if sess.HasEndedAt(now) || now.After(sess.StartTime) {
		return Reminder{}, ErrSessionEnded
	}

	exists, err := svc.repo.ReminderExists(ctx, st.UserID, sessionID)
	if err != nil {
		return Reminder{}, errors.Wrap(err, "checking reminder")
	}
	if exists {
		return Reminder{}, ErrReminderExists
	}

	rem := Reminder{
		ID:        uuid.New().String(),
		UserID:    st.UserID,
		SessionID: sessionID,
		Title:     sess.Title,
		RemindAt:  sess.StartTime,
		CreatedAt: now,
	}
	return svc.repo.CreateReminder(ctx, rem)
}

// SendSessionMessage posts a chat message to the session.
func (svc *Service) SendSessionMessage(ctx context.Context, st user.Student, sessionID string, nm NewSessionMessage) (SessionMessage, error) {
	if _, err := svc.getRegisteredSession(ctx, st, sessionID); err != nil {
		return SessionMessage{}, err
	}

	msg := SessionMessage{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		UserID:     st.UserID,
		SenderName: st.FullName,
		Content:    nm.Content,
		CreatedAt:  NowFunc().UTC(),
	}
	return svc.repo.CreateSessionMessage(ctx, msg)
}

// SessionMessages lists the session chat, flagging the caller's own messages.
func (svc *Service) SessionMessages(ctx context.Context, st user.Student, sessionID string) ([]MessageListItem, error) {
	if _, err := svc.getRegisteredSession(ctx, st, sessionID); err != nil {
		return nil, err
	}

	msgs, err := svc.repo.QuerySessionMessages(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	items := make([]MessageListItem, 0, len(msgs))
	for _, msg := range msgs {
		items = append(items, MessageListItem{SessionMessage: msg, IsMe: msg.UserID == st.UserID})
	}
	return items, nil
}

// ScheduleLiveSession schedules a session for one of the teacher's classes.
func (svc *Service) ScheduleLiveSession(ctx context.Context, teacher user.User, ns NewLiveSession) (LiveSession, error) {
	class, err := svc.repo.GetClassByID(ctx, ns.ClassID)
	if err != nil {
		return LiveSession{}, errors.Wrap(err, "finding class")
	}
	if class.TeacherID != teacher.ID && !teacher.IsAdmin() {
		return LiveSession{}, ErrNotClassTeacher
	}

	sess := LiveSession{
		ID:          uuid.New().String(),
		ClassID:     ns.ClassID,
		Title:       ns.Title,
		Description: ns.Description,
		Status:      SessionScheduled,
		StartTime:   ns.StartTime.UTC(),
		EndTime:     ns.EndTime.UTC(),
		MeetingURL:  ns.MeetingURL,
		CreatedBy:   teacher.ID,
		CreatedAt:   NowFunc().UTC(),
	}
	return svc.repo.CreateLiveSession(ctx, sess)
}

// Materials lists the learning materials of a registered class.
func (svc *Service) Materials(ctx context.Context, st user.Student, classID string) ([]LearningMaterial, error) {
	registered, err := svc.repo.IsStudentInClass(ctx, classID, st.ID)
	if err != nil {
		return nil, errors.Wrap(err, "checking enrollment")
	}
	if !registered {
		return nil, ErrNotRegistered
	}

	materials, err := svc.repo.QueryMaterialsByClass(ctx, classID)
	if err != nil {
		return nil, errors.Wrap(err, "querying materials")
	}
	if materials == nil {
		materials = []LearningMaterial{}
	}
	return materials, nil
}

// MaterialDetail returns one material with its lecture notes and counts the view.
func (svc *Service) MaterialDetail(ctx context.Context, st user.Student, materialID string) (LearningMaterial, error) {
	material, err := svc.repo.GetLearningMaterial(ctx, materialID)
	if err != nil {
		return LearningMaterial{}, errors.Wrap(err, "finding material")
	}
	registered, err := svc.repo.IsStudentInClass(ctx, material.ClassID, st.ID)
	if err != nil {
		return LearningMaterial{}, errors.Wrap(err, "checking enrollment")
	}
	if !registered {
		return LearningMaterial{}, ErrNotRegistered
	}

	if err := svc.repo.IncrementMaterialViews(ctx, materialID); err != nil {
		return LearningMaterial{}, errors.Wrap(err, "counting view")
	}
	material.Views++

	notes, err := svc.repo.QueryLectureNotes(ctx, materialID)
	if err != nil {
		return LearningMaterial{}, errors.Wrap(err, "querying lecture notes")
	}
	material.LectureNotes = notes
	return material, nil
}
