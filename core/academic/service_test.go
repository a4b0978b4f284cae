package academic_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/dashboard"
	"github.com/darasahq/darasa/core/user"
	inmemdb "github.com/darasahq/darasa/storage/database/inmem"
)

func setup(t *testing.T) (*inmemdb.DB, *academic.Service) {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed, %v", err)
	}
	return db, academic.NewService(inmemdb.NewAcademicRepository(db))
}

func newStudent(grade string) user.Student {
	id := uuid.New().String()
	return user.Student{
		ID:        id,
		UserID:    uuid.New().String(),
		StudentID: "STU-" + id[:8],
		FullName:  "Awe Some",
		Grade:     grade,
	}
}

func seedClass(db *inmemdb.DB, subject, grade string, active bool) academic.Class {
	now := time.Now().UTC()
	teacher := user.User{ID: uuid.New().String(), FirstName: "Prof", LastName: "Moja", Role: user.RoleTeacher}
	class := academic.Class{
		ID:         uuid.New().String(),
		Subject:    subject,
		Type:       academic.ClassTypeCompulsory,
		GradeLevel: grade,
		TeacherID:  teacher.ID,
		StartDate:  now.AddDate(0, 0, -30),
		EndDate:    now.AddDate(0, 0, 60),
		StartTime:  "09:00",
		EndTime:    "10:00",
		IsActive:   active,
		CreatedAt:  now,
		UpdatedAt:  now,
		Teacher:    teacher,
	}
	db.SeedClass(class)
	return class
}

func register(t *testing.T, svc *academic.Service, st user.Student, subjects ...string) academic.RegistrationResult {
	t.Helper()
	res, err := svc.RegisterSubjects(context.Background(), st, academic.RegisterSubjects{
		Subjects:    subjects,
		SessionYear: "2025/2026",
		Term:        "first",
	})
	if err != nil {
		t.Fatalf("RegisterSubjects() failed, %v", err)
	}
	return res
}

func Test_Service_RegisterSubjects(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()

	seedClass(db, "Mathematics", "SS2", true)
	seedClass(db, "English", "SS2", true)
	seedClass(db, "Physics", "SS2", false)
	seedClass(db, "Latin", "SS3", true)

	st := newStudent("SS2")

	subjects, err := svc.AvailableSubjects(ctx, st)
	if err != nil {
		t.Fatalf("AvailableSubjects() failed, %v", err)
	}
	if len(subjects) != 2 {
		t.Fatalf("len(subjects) = %d, want 2", len(subjects))
	}
	for _, sub := range subjects {
		if sub.IsRegistered {
			t.Errorf("%s.IsRegistered = true, want false", sub.Subject)
		}
	}

	res := register(t, svc, st, "Mathematics", "Physics", "Latin")
	if len(res.Registered) != 1 || res.Registered[0] != "Mathematics" {
		t.Errorf("res.Registered = %v, want [Mathematics]", res.Registered)
	}
	wantSkipped := []string{
		"Physics - No active class found for SS2",
		"Latin - No active class found for SS2",
	}
	if len(res.Skipped) != len(wantSkipped) {
		t.Fatalf("res.Skipped = %v, want %v", res.Skipped, wantSkipped)
	}
	for i, want := range wantSkipped {
		if res.Skipped[i] != want {
			t.Errorf("res.Skipped[%d] = %q, want %q", i, res.Skipped[i], want)
		}
	}

	// registering the same subject again for the same session/term only skips
	res, err = svc.RegisterSubjects(ctx, st, academic.RegisterSubjects{
		Subjects:    []string{"Mathematics"},
		SessionYear: "2025/2026",
		Term:        "first",
	})
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("RegisterSubjects() error = %v, want *core.ValidationError", err)
	}
	if vErr.Err != academic.ErrNoneRegistered {
		t.Errorf("vErr.Err = %v, want %v", vErr.Err, academic.ErrNoneRegistered)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "Mathematics - already registered" {
		t.Errorf("res.Skipped = %v, want [Mathematics - already registered]", res.Skipped)
	}

	// a new term opens registration again
	res, err = svc.RegisterSubjects(ctx, st, academic.RegisterSubjects{
		Subjects:    []string{"Mathematics"},
		SessionYear: "2025/2026",
		Term:        "second",
	})
	if err != nil {
		t.Fatalf("RegisterSubjects() failed, %v", err)
	}
	if len(res.Registered) != 1 {
		t.Errorf("res.Registered = %v, want [Mathematics]", res.Registered)
	}

	subjects, err = svc.AvailableSubjects(ctx, st)
	if err != nil {
		t.Fatalf("AvailableSubjects() failed, %v", err)
	}
	for _, sub := range subjects {
		if sub.Subject == "Mathematics" && !sub.IsRegistered {
			t.Error("Mathematics.IsRegistered = false, want true")
		}
		if sub.Subject == "English" && sub.IsRegistered {
			t.Error("English.IsRegistered = true, want false")
		}
	}

	courses, err := svc.Courses(ctx, st)
	if err != nil {
		t.Fatalf("Courses() failed, %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("len(courses) = %d, want 2", len(courses))
	}
	if courses[0].TeacherName != "Prof Moja" {
		t.Errorf("courses[0].TeacherName = %s, want Prof Moja", courses[0].TeacherName)
	}
}

func Test_Service_SubjectsProgress(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()

	seedClass(db, "Mathematics", "SS2", true)
	seedClass(db, "English", "SS2", true)
	seedClass(db, "Mathematics", "SS3", true)

	st := newStudent("SS2")
	register(t, svc, st, "Mathematics", "English")

	// a later Mathematics registration supersedes the first one
	academic.NowFunc = func() time.Time { return time.Now().Add(time.Hour) }
	defer func() { academic.NowFunc = time.Now }()
	if _, err := svc.RegisterSubjects(ctx, st, academic.RegisterSubjects{
		Subjects:    []string{"Mathematics"},
		SessionYear: "2025/2026",
		Term:        "second",
	}); err != nil {
		t.Fatalf("RegisterSubjects() failed, %v", err)
	}

	db.SeedAcademicProgress(dashboard.AcademicProgress{
		StudentID: st.ID,
		Grades:    map[string]float64{"Mathematics": 75},
	})

	progress, err := svc.SubjectsProgress(ctx, st)
	if err != nil {
		t.Fatalf("SubjectsProgress() failed, %v", err)
	}
	if progress.TotalSubjects != 2 || len(progress.Subjects) != 2 {
		t.Fatalf("progress.TotalSubjects = %d, want 2", progress.TotalSubjects)
	}

	english, maths := progress.Subjects[0], progress.Subjects[1]
	if english.Subject != "English" || maths.Subject != "Mathematics" {
		t.Fatalf("subjects = [%s, %s], want [English, Mathematics]", english.Subject, maths.Subject)
	}
	if english.Grade != nil || english.Progress != nil {
		t.Errorf("english.Grade = %v, want nil", english.Grade)
	}
	if english.ClassCount != 1 {
		t.Errorf("english.ClassCount = %d, want 1", english.ClassCount)
	}
	if maths.Grade == nil || *maths.Grade != 75 {
		t.Errorf("maths.Grade = %v, want 75", maths.Grade)
	}
	if maths.Progress == nil || *maths.Progress != 75 {
		t.Errorf("maths.Progress = %v, want 75", maths.Progress)
	}
	if maths.Term != "second" {
		t.Errorf("maths.Term = %s, want second", maths.Term)
	}
	if maths.ClassCount != 2 {
		t.Errorf("maths.ClassCount = %d, want 2", maths.ClassCount)
	}
}

func Test_Service_Roadmap(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	current := seedClass(db, "Mathematics", "SS2", true)

	upcoming := seedClass(db, "English", "SS2", true)
	upcoming.StartDate = now.AddDate(0, 0, 7)
	upcoming.EndDate = now.AddDate(0, 0, 21)
	db.SeedClass(upcoming)

	st := newStudent("SS2")
	register(t, svc, st, "Mathematics", "English")

	items, err := svc.Roadmap(ctx, st)
	if err != nil {
		t.Fatalf("Roadmap() failed, %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	byClass := make(map[string]academic.RoadmapItem, len(items))
	for _, item := range items {
		byClass[item.ClassID] = item
	}
	if got := byClass[current.ID]; got.Status != academic.StatusInProgress || got.Duration != "3 months" {
		t.Errorf("current = (%s, %s), want (in_progress, 3 months)", got.Status, got.Duration)
	}
	if got := byClass[upcoming.ID]; got.Status != academic.StatusNotStarted || got.Duration != "2 weeks" {
		t.Errorf("upcoming = (%s, %s), want (not_started, 2 weeks)", got.Status, got.Duration)
	}

	teacher := user.User{ID: current.TeacherID, Role: user.RoleTeacher}
	if _, err := svc.CreateSubjectModule(ctx, teacher, academic.NewSubjectModule{
		ClassID: current.ID,
		Title:   "Algebra",
		Order:   1,
	}); err != nil {
		t.Fatalf("CreateSubjectModule() failed, %v", err)
	}

	detail, err := svc.RoadmapDetail(ctx, st, current.ID)
	if err != nil {
		t.Fatalf("RoadmapDetail() failed, %v", err)
	}
	if len(detail.Modules) != 1 || detail.Modules[0].Title != "Algebra" {
		t.Errorf("detail.Modules = %v, want [Algebra]", detail.Modules)
	}

	outsider := newStudent("SS2")
	if _, err := svc.RoadmapDetail(ctx, outsider, current.ID); errors.Cause(err) != academic.ErrNotRegistered {
		t.Errorf("RoadmapDetail() error = %v, wantErr %v", err, academic.ErrNotRegistered)
	}

	other := user.User{ID: uuid.New().String(), Role: user.RoleTeacher}
	if _, err := svc.CreateSubjectModule(ctx, other, academic.NewSubjectModule{
		ClassID: current.ID,
		Title:   "Trigonometry",
		Order:   2,
	}); errors.Cause(err) != academic.ErrNotClassTeacher {
		t.Errorf("CreateSubjectModule() error = %v, wantErr %v", err, academic.ErrNotClassTeacher)
	}
}

func Test_Service_LiveSessions(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	class := seedClass(db, "Mathematics", "SS2", true)
	st := newStudent("SS2")
	register(t, svc, st, "Mathematics")

	teacher := user.User{ID: class.TeacherID, Role: user.RoleTeacher}
	live, err := svc.ScheduleLiveSession(ctx, teacher, academic.NewLiveSession{
		ClassID:    class.ID,
		Title:      "Algebra revision",
		StartTime:  now.Add(-10 * time.Minute),
		EndTime:    now.Add(50 * time.Minute),
		MeetingURL: "https://meet.test/algebra",
	})
	if err != nil {
		t.Fatalf("ScheduleLiveSession() failed, %v", err)
	}
	later, err := svc.ScheduleLiveSession(ctx, teacher, academic.NewLiveSession{
		ClassID:    class.ID,
		Title:      "Geometry intro",
		StartTime:  now.Add(24 * time.Hour),
		EndTime:    now.Add(25 * time.Hour),
		MeetingURL: "https://meet.test/geometry",
	})
	if err != nil {
		t.Fatalf("ScheduleLiveSession() failed, %v", err)
	}

	items, err := svc.LiveSessions(ctx, st)
	if err != nil {
		t.Fatalf("LiveSessions() failed, %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	for _, item := range items {
		switch item.ID {
		case live.ID:
			if !item.CanJoin || item.MeetingURL == "" {
				t.Errorf("live session = (%v, %q), want joinable with URL", item.CanJoin, item.MeetingURL)
			}
		case later.ID:
			if item.CanJoin || item.MeetingURL != "" {
				t.Errorf("later session = (%v, %q), want hidden URL", item.CanJoin, item.MeetingURL)
			}
		}
	}

	msg, err := svc.JoinLiveSession(ctx, st, live.ID)
	if err != nil {
		t.Fatalf("JoinLiveSession() failed, %v", err)
	}
	if msg != "Joined session successfully" {
		t.Errorf("msg = %q, want %q", msg, "Joined session successfully")
	}
	if msg, _ = svc.JoinLiveSession(ctx, st, live.ID); msg != "Already joined this session" {
		t.Errorf("msg = %q, want %q", msg, "Already joined this session")
	}

	detail, err := svc.LiveSessionDetail(ctx, st, live.ID)
	if err != nil {
		t.Fatalf("LiveSessionDetail() failed, %v", err)
	}
	if detail.ParticipantCount != 1 {
		t.Errorf("detail.ParticipantCount = %d, want 1", detail.ParticipantCount)
	}

	if msg, _ = svc.LeaveLiveSession(ctx, st, live.ID); msg != "Left session successfully" {
		t.Errorf("msg = %q, want %q", msg, "Left session successfully")
	}
	if msg, _ = svc.LeaveLiveSession(ctx, st, live.ID); msg != "Not a participant of this session" {
		t.Errorf("msg = %q, want %q", msg, "Not a participant of this session")
	}

	// a session already underway cannot get a reminder
	if _, err := svc.ScheduleSessionReminder(ctx, st, live.ID); errors.Cause(err) != academic.ErrSessionEnded {
		t.Errorf("ScheduleSessionReminder() error = %v, wantErr %v", err, academic.ErrSessionEnded)
	}
	rem, err := svc.ScheduleSessionReminder(ctx, st, later.ID)
	if err != nil {
		t.Fatalf("ScheduleSessionReminder() failed, %v", err)
	}
	if !rem.RemindAt.Equal(later.StartTime) {
		t.Errorf("rem.RemindAt = %v, want %v", rem.RemindAt, later.StartTime)
	}
	if _, err := svc.ScheduleSessionReminder(ctx, st, later.ID); errors.Cause(err) != academic.ErrReminderExists {
		t.Errorf("ScheduleSessionReminder() error = %v, wantErr %v", err, academic.ErrReminderExists)
	}

	// chat
	sent, err := svc.SendSessionMessage(ctx, st, live.ID, academic.NewSessionMessage{Content: "hello"})
	if err != nil {
		t.Fatalf("SendSessionMessage() failed, %v", err)
	}
	if sent.SenderName != st.FullName {
		t.Errorf("sent.SenderName = %s, want %s", sent.SenderName, st.FullName)
	}
	msgs, err := svc.SessionMessages(ctx, st, live.ID)
	if err != nil {
		t.Fatalf("SessionMessages() failed, %v", err)
	}
	if len(msgs) != 1 || !msgs[0].IsMe {
		t.Errorf("msgs = %v, want the caller's own message", msgs)
	}

	ended := academic.LiveSession{
		ID:        uuid.New().String(),
		ClassID:   class.ID,
		Title:     "Last term recap",
		Status:    academic.SessionCompleted,
		StartTime: now.Add(-2 * time.Hour),
		EndTime:   now.Add(-time.Hour),
		CreatedBy: teacher.ID,
		CreatedAt: now,
	}
	db.SeedLiveSession(ended)
	if _, err := svc.JoinLiveSession(ctx, st, ended.ID); errors.Cause(err) != academic.ErrSessionEnded {
		t.Errorf("JoinLiveSession() error = %v, wantErr %v", err, academic.ErrSessionEnded)
	}

	outsider := newStudent("SS2")
	if _, err := svc.JoinLiveSession(ctx, outsider, live.ID); errors.Cause(err) != academic.ErrNotRegistered {
		t.Errorf("JoinLiveSession() error = %v, wantErr %v", err, academic.ErrNotRegistered)
	}

	if _, err := svc.ScheduleLiveSession(ctx, user.User{ID: uuid.New().String(), Role: user.RoleTeacher}, academic.NewLiveSession{
		ClassID:   class.ID,
		Title:     "Hijack",
		StartTime: now,
		EndTime:   now.Add(time.Hour),
	}); errors.Cause(err) != academic.ErrNotClassTeacher {
		t.Errorf("ScheduleLiveSession() error = %v, wantErr %v", err, academic.ErrNotClassTeacher)
	}
}

func Test_Service_Materials(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	class := seedClass(db, "Mathematics", "SS2", true)
	st := newStudent("SS2")
	register(t, svc, st, "Mathematics")

	material := academic.LearningMaterial{
		ID:        uuid.New().String(),
		ClassID:   class.ID,
		Title:     "Quadratic equations",
		Type:      "document",
		CreatedAt: now,
	}
	noteID := uuid.New().String()
	note := academic.LectureNote{
		ID:         noteID,
		MaterialID: material.ID,
		Title:      "Week 1",
		Order:      1,
		Sections: []academic.LectureNoteSection{
			{ID: uuid.New().String(), NoteID: noteID, Heading: "Roots", Content: "...", Order: 1},
		},
	}
	db.SeedMaterial(material, note)

	materials, err := svc.Materials(ctx, st, class.ID)
	if err != nil {
		t.Fatalf("Materials() failed, %v", err)
	}
	if len(materials) != 1 {
		t.Fatalf("len(materials) = %d, want 1", len(materials))
	}

	detail, err := svc.MaterialDetail(ctx, st, material.ID)
	if err != nil {
		t.Fatalf("MaterialDetail() failed, %v", err)
	}
	if detail.Views != 1 {
		t.Errorf("detail.Views = %d, want 1", detail.Views)
	}
	if len(detail.LectureNotes) != 1 || len(detail.LectureNotes[0].Sections) != 1 {
		t.Errorf("detail.LectureNotes = %v, want 1 note with 1 section", detail.LectureNotes)
	}

	// every read counts
	if detail, err = svc.MaterialDetail(ctx, st, material.ID); err != nil {
		t.Fatalf("MaterialDetail() failed, %v", err)
	}
	if detail.Views != 2 {
		t.Errorf("detail.Views = %d, want 2", detail.Views)
	}

	outsider := newStudent("SS2")
	if _, err := svc.Materials(ctx, outsider, class.ID); errors.Cause(err) != academic.ErrNotRegistered {
		t.Errorf("Materials() error = %v, wantErr %v", err, academic.ErrNotRegistered)
	}
	if _, err := svc.MaterialDetail(ctx, outsider, material.ID); errors.Cause(err) != academic.ErrNotRegistered {
		t.Errorf("MaterialDetail() error = %v, wantErr %v", err, academic.ErrNotRegistered)
	}
}

// racedRegistrationRepo hides existing registrations from the pre-insert
// check so the insert itself has to catch the duplicate.
type racedRegistrationRepo struct {
	academic.Repository
}

func (r *racedRegistrationRepo) RegistrationExists(_ context.Context, _, _, _, _ string) (bool, error) {
	return false, nil
}

func Test_Service_RegistrationRace(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()

	seedClass(db, "Mathematics", "SS2", true)
	st := newStudent("SS2")
	register(t, svc, st, "Mathematics")

	raced := academic.NewService(&racedRegistrationRepo{Repository: inmemdb.NewAcademicRepository(db)})
	res, err := raced.RegisterSubjects(ctx, st, academic.RegisterSubjects{
		Subjects:    []string{"Mathematics"},
		SessionYear: "2025/2026",
		Term:        "first",
	})
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("RegisterSubjects() error = %v, want *core.ValidationError", err)
	}
	if vErr.Err != academic.ErrNoneRegistered {
		t.Errorf("vErr.Err = %v, want %v", vErr.Err, academic.ErrNoneRegistered)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "Mathematics - already registered" {
		t.Errorf("res.Skipped = %v, want [Mathematics - already registered]", res.Skipped)
	}
}
