package activity_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/activity"
	"github.com/darasahq/darasa/core/user"
	inmemdb "github.com/darasahq/darasa/storage/database/inmem"
)

type actEnv struct {
	db      *inmemdb.DB
	svc     *activity.Service
	teacher user.User
	class   academic.Class
	st      user.Student
}

func setup(t *testing.T) *actEnv {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed, %v", err)
	}

	now := time.Now().UTC()
	teacher := user.User{ID: uuid.New().String(), FirstName: "Prof", LastName: "Moja", Role: user.RoleTeacher}
	class := academic.Class{
		ID:         uuid.New().String(),
		Subject:    "Mathematics",
		Type:       academic.ClassTypeCompulsory,
		GradeLevel: "SS2",
		TeacherID:  teacher.ID,
		StartDate:  now.AddDate(0, 0, -30),
		EndDate:    now.AddDate(0, 0, 60),
		IsActive:   true,
		Teacher:    teacher,
	}
	db.SeedClass(class)

	st := user.Student{
		ID:        uuid.New().String(),
		UserID:    uuid.New().String(),
		StudentID: "STU-001",
		FullName:  "Awe Some",
		Grade:     "SS2",
	}
	acadRepo := inmemdb.NewAcademicRepository(db)
	if err := acadRepo.AddStudentToClass(context.Background(), class.ID, st.ID); err != nil {
		t.Fatalf("AddStudentToClass() failed, %v", err)
	}

	return &actEnv{
		db:      db,
		svc:     activity.NewService(inmemdb.NewActivityRepository(db)),
		teacher: teacher,
		class:   class,
		st:      st,
	}
}

func (env *actEnv) createQuiz(t *testing.T, due time.Time) activity.ClassActivity {
	t.Helper()
	act, err := env.svc.Create(context.Background(), env.teacher, activity.NewClassActivity{
		ClassID: env.class.ID,
		Title:   "Algebra quiz",
		Type:    "quiz",
		DueDate: due,
		Questions: []activity.NewQuestion{
			{Text: "2 + 2 = ?", Type: activity.QuestionMultipleChoice, Options: []string{"3", "4", "5"}, CorrectAnswer: "4", Points: 5},
			{Text: "The earth is flat.", Type: activity.QuestionTrueFalse, CorrectAnswer: "false", Points: 5},
		},
	})
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}
	return act
}

func Test_Service_AttemptLifecycle(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	act := env.createQuiz(t, time.Now().Add(24*time.Hour))
	if act.TotalPoints != 10 {
		t.Errorf("act.TotalPoints = %d, want 10", act.TotalPoints)
	}

	items, err := env.svc.List(ctx, env.st, []string{env.class.ID}, activity.FilterAll)
	if err != nil {
		t.Fatalf("List() failed, %v", err)
	}
	if len(items) != 1 || items[0].AttemptStatus != activity.StatusPending {
		t.Fatalf("items = %v, want one pending activity", items)
	}

	// questions are locked until the attempt starts
	if _, err := env.svc.Questions(ctx, env.st, act.ID, 1, 10); errors.Cause(err) != activity.ErrNotStarted {
		t.Errorf("Questions() error = %v, wantErr %v", err, activity.ErrNotStarted)
	}
	if _, err := env.svc.Submit(ctx, env.st, act.ID, activity.SubmitActivity{Answers: map[string]string{}}); errors.Cause(err) != activity.ErrNotStarted {
		t.Errorf("Submit() error = %v, wantErr %v", err, activity.ErrNotStarted)
	}

	att, err := env.svc.Start(ctx, env.st, act.ID)
	if err != nil {
		t.Fatalf("Start() failed, %v", err)
	}
	if att.Status != activity.StatusInProgress {
		t.Errorf("att.Status = %s, want %s", att.Status, activity.StatusInProgress)
	}

	// restarting resumes the same attempt
	again, err := env.svc.Start(ctx, env.st, act.ID)
	if err != nil {
		t.Fatalf("Start() failed, %v", err)
	}
	if again.ID != att.ID {
		t.Errorf("again.ID = %s, want %s", again.ID, att.ID)
	}

	page, err := env.svc.Questions(ctx, env.st, act.ID, 1, 1)
	if err != nil {
		t.Fatalf("Questions() failed, %v", err)
	}
	if page.Total != 2 || len(page.Questions) != 1 {
		t.Fatalf("page = (%d, %d), want (2, 1)", page.Total, len(page.Questions))
	}
	if page.Questions[0].Order != 1 {
		t.Errorf("page.Questions[0].Order = %d, want 1", page.Questions[0].Order)
	}
	page2, err := env.svc.Questions(ctx, env.st, act.ID, 2, 1)
	if err != nil {
		t.Fatalf("Questions() failed, %v", err)
	}
	if len(page2.Questions) != 1 || page2.Questions[0].Order != 2 {
		t.Fatalf("page2.Questions = %v, want the second question", page2.Questions)
	}

	// first answer right, second wrong
	answers := map[string]string{
		page.Questions[0].ID:  "4",
		page2.Questions[0].ID: "true",
	}
	res, err := env.svc.Submit(ctx, env.st, act.ID, activity.SubmitActivity{Answers: answers})
	if err != nil {
		t.Fatalf("Submit() failed, %v", err)
	}
	if res.Status != activity.StatusSubmitted || res.Score != 5 || res.TotalPoints != 10 {
		t.Errorf("res = %+v, want (submitted, 5, 10)", res)
	}

	detail, err := env.svc.Detail(ctx, env.st, act.ID)
	if err != nil {
		t.Fatalf("Detail() failed, %v", err)
	}
	if detail.AttemptStatus != activity.StatusSubmitted || detail.Score != 5 || detail.QuestionCount != 2 {
		t.Errorf("detail = %+v, want (submitted, 5, 2)", detail)
	}

	// terminal attempts stay terminal
	if _, err := env.svc.Submit(ctx, env.st, act.ID, activity.SubmitActivity{Answers: answers}); errors.Cause(err) != activity.ErrAlreadySubmitted {
		t.Errorf("Submit() error = %v, wantErr %v", err, activity.ErrAlreadySubmitted)
	}
	if _, err := env.svc.Start(ctx, env.st, act.ID); errors.Cause(err) != activity.ErrAlreadySubmitted {
		t.Errorf("Start() error = %v, wantErr %v", err, activity.ErrAlreadySubmitted)
	}
}

func Test_Service_LateSubmission(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	act := env.createQuiz(t, time.Now().Add(-time.Hour))

	if _, err := env.svc.Start(ctx, env.st, act.ID); err != nil {
		t.Fatalf("Start() failed, %v", err)
	}
	res, err := env.svc.Submit(ctx, env.st, act.ID, activity.SubmitActivity{Answers: map[string]string{}})
	if err != nil {
		t.Fatalf("Submit() failed, %v", err)
	}
	if res.Status != activity.StatusLate {
		t.Errorf("res.Status = %s, want %s", res.Status, activity.StatusLate)
	}
	if res.Score != 0 || res.TotalPoints != 10 {
		t.Errorf("res = %+v, want a scored late submission", res)
	}
}

func Test_Service_ListFilters(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	upcoming := env.createQuiz(t, time.Now().Add(24*time.Hour))
	past := env.createQuiz(t, time.Now().Add(-24*time.Hour))

	check := func(filter, wantID string) {
		t.Helper()
		items, err := env.svc.List(ctx, env.st, []string{env.class.ID}, filter)
		if err != nil {
			t.Fatalf("List(%s) failed, %v", filter, err)
		}
		if len(items) != 1 || items[0].ID != wantID {
			t.Errorf("List(%s) = %v, want [%s]", filter, items, wantID)
		}
	}
	check(activity.FilterUpcoming, upcoming.ID)
	check(activity.FilterPast, past.ID)

	items, err := env.svc.List(ctx, env.st, []string{env.class.ID}, activity.FilterAll)
	if err != nil {
		t.Fatalf("List() failed, %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}
}

func Test_Service_AssignmentLifecycle(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	asg, err := env.svc.CreateAssignment(ctx, env.teacher, activity.NewAssignment{
		ClassID:    env.class.ID,
		Title:      "Essay on polynomials",
		Priority:   activity.PriorityHigh,
		DueDate:    time.Now().Add(72 * time.Hour),
		StudentIDs: []string{env.st.ID},
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed, %v", err)
	}

	items, err := env.svc.ListAssignments(ctx, env.st, activity.FilterPending)
	if err != nil {
		t.Fatalf("ListAssignments() failed, %v", err)
	}
	if len(items) != 1 || items[0].SubmissionStatus != activity.StatusPending {
		t.Fatalf("items = %v, want one pending assignment", items)
	}

	// grading an unsubmitted assignment is rejected
	if _, err := env.svc.GradeAssignment(ctx, env.teacher, env.st.ID, asg.ID, activity.GradeSubmission{Grade: 50}); errors.Cause(err) != activity.ErrSubmissionNotFound {
		t.Errorf("GradeAssignment() error = %v, wantErr %v", err, activity.ErrSubmissionNotFound)
	}
	if _, err := env.svc.ViewSubmission(ctx, env.st, asg.ID); errors.Cause(err) != activity.ErrNoSubmission {
		t.Errorf("ViewSubmission() error = %v, wantErr %v", err, activity.ErrNoSubmission)
	}

	sub, err := env.svc.StartAssignment(ctx, env.st, asg.ID)
	if err != nil {
		t.Fatalf("StartAssignment() failed, %v", err)
	}
	if sub.Status != activity.StatusInProgress {
		t.Errorf("sub.Status = %s, want %s", sub.Status, activity.StatusInProgress)
	}

	// last draft wins
	if _, err := env.svc.SaveDraft(ctx, env.st, asg.ID, activity.DraftSubmission{SubmissionText: "First draft"}); err != nil {
		t.Fatalf("SaveDraft() failed, %v", err)
	}
	if _, err := env.svc.SaveDraft(ctx, env.st, asg.ID, activity.DraftSubmission{SubmissionText: "Second draft"}); err != nil {
		t.Fatalf("SaveDraft() failed, %v", err)
	}
	preview, err := env.svc.PreviewSubmission(ctx, env.st, asg.ID)
	if err != nil {
		t.Fatalf("PreviewSubmission() failed, %v", err)
	}
	if preview.Status != activity.StatusDraft || preview.SubmissionText != "Second draft" {
		t.Errorf("preview = %+v, want the latest draft", preview)
	}

	// submitted content overrides the draft
	final, err := env.svc.SubmitAssignment(ctx, env.st, asg.ID, activity.DraftSubmission{SubmissionText: "Final version"})
	if err != nil {
		t.Fatalf("SubmitAssignment() failed, %v", err)
	}
	if final.Status != activity.StatusSubmitted || final.SubmissionText != "Final version" {
		t.Errorf("final = %+v, want a submitted final version", final)
	}

	if _, err := env.svc.SaveDraft(ctx, env.st, asg.ID, activity.DraftSubmission{SubmissionText: "Too late"}); errors.Cause(err) != activity.ErrAssignmentFinal {
		t.Errorf("SaveDraft() error = %v, wantErr %v", err, activity.ErrAssignmentFinal)
	}
	if _, err := env.svc.SubmitAssignment(ctx, env.st, asg.ID, activity.DraftSubmission{}); errors.Cause(err) != activity.ErrAssignmentFinal {
		t.Errorf("SubmitAssignment() error = %v, wantErr %v", err, activity.ErrAssignmentFinal)
	}

	items, err = env.svc.ListAssignments(ctx, env.st, activity.FilterSubmitted)
	if err != nil {
		t.Fatalf("ListAssignments() failed, %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}

	graded, err := env.svc.GradeAssignment(ctx, env.teacher, env.st.ID, asg.ID, activity.GradeSubmission{Grade: 85, Feedback: "Solid work"})
	if err != nil {
		t.Fatalf("GradeAssignment() failed, %v", err)
	}
	if graded.Status != activity.StatusGraded || graded.Grade == nil || *graded.Grade != 85 {
		t.Errorf("graded = %+v, want an 85%% grade", graded)
	}

	// a graded submission cannot be regraded
	if _, err := env.svc.GradeAssignment(ctx, env.teacher, env.st.ID, asg.ID, activity.GradeSubmission{Grade: 90}); errors.Cause(err) != activity.ErrNotGradable {
		t.Errorf("GradeAssignment() error = %v, wantErr %v", err, activity.ErrNotGradable)
	}

	view, err := env.svc.ViewSubmission(ctx, env.st, asg.ID)
	if err != nil {
		t.Fatalf("ViewSubmission() failed, %v", err)
	}
	if view.Feedback != "Solid work" {
		t.Errorf("view.Feedback = %q, want %q", view.Feedback, "Solid work")
	}
}

func Test_Service_AccessControl(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	act := env.createQuiz(t, time.Now().Add(24*time.Hour))

	outsider := user.Student{ID: uuid.New().String(), UserID: uuid.New().String(), Grade: "SS2"}
	if _, err := env.svc.Detail(ctx, outsider, act.ID); errors.Cause(err) != activity.ErrNotEnrolled {
		t.Errorf("Detail() error = %v, wantErr %v", err, activity.ErrNotEnrolled)
	}
	if _, err := env.svc.Start(ctx, outsider, act.ID); errors.Cause(err) != activity.ErrNotEnrolled {
		t.Errorf("Start() error = %v, wantErr %v", err, activity.ErrNotEnrolled)
	}

	other := user.User{ID: uuid.New().String(), Role: user.RoleTeacher}
	if _, err := env.svc.Create(ctx, other, activity.NewClassActivity{
		ClassID: env.class.ID,
		Title:   "Hijacked quiz",
		Type:    "quiz",
		DueDate: time.Now().Add(time.Hour),
		Questions: []activity.NewQuestion{
			{Text: "?", Type: activity.QuestionShortAnswer, CorrectAnswer: "!", Points: 1},
		},
	}); errors.Cause(err) != activity.ErrNotClassTeacher {
		t.Errorf("Create() error = %v, wantErr %v", err, activity.ErrNotClassTeacher)
	}

	asg, err := env.svc.CreateAssignment(ctx, env.teacher, activity.NewAssignment{
		ClassID:    env.class.ID,
		Title:      "Reserved essay",
		Priority:   activity.PriorityLow,
		DueDate:    time.Now().Add(time.Hour),
		StudentIDs: []string{env.st.ID},
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed, %v", err)
	}
	if _, err := env.svc.StartAssignment(ctx, outsider, asg.ID); errors.Cause(err) != activity.ErrNotAssigned {
		t.Errorf("StartAssignment() error = %v, wantErr %v", err, activity.ErrNotAssigned)
	}

	// admins may act on any class
	admin := user.User{ID: uuid.New().String(), Role: user.RoleAdmin}
	if _, err := env.svc.CreateAssignment(ctx, admin, activity.NewAssignment{
		ClassID:    env.class.ID,
		Title:      "Admin handout",
		Priority:   activity.PriorityMedium,
		DueDate:    time.Now().Add(time.Hour),
		StudentIDs: []string{env.st.ID},
	}); err != nil {
		t.Fatalf("CreateAssignment() failed, %v", err)
	}
}

// racedAttemptRepo makes a competing start win between the service's
// existence check and its insert.
type racedAttemptRepo struct {
	activity.Repository
	winner activity.StudentClassActivity
	raced  bool
}

func (r *racedAttemptRepo) GetAttempt(ctx context.Context, studentID, activityID string) (activity.StudentClassActivity, error) {
	if !r.raced {
		return activity.StudentClassActivity{}, activity.ErrAttemptNotFound
	}
	return r.Repository.GetAttempt(ctx, studentID, activityID)
}

func (r *racedAttemptRepo) CreateAttempt(ctx context.Context, att activity.StudentClassActivity) (activity.StudentClassActivity, error) {
	r.raced = true
	if _, err := r.Repository.CreateAttempt(ctx, r.winner); err != nil {
		return activity.StudentClassActivity{}, err
	}
	return activity.StudentClassActivity{}, activity.ErrAttemptExists
}

func Test_Service_ConcurrentWrites(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	repo := inmemdb.NewActivityRepository(env.db)

	t.Run("losing a start race resumes the winning attempt", func(t *testing.T) {
		act := env.createQuiz(t, time.Now().Add(24*time.Hour))
		winner := activity.StudentClassActivity{
			ID:         uuid.New().String(),
			StudentID:  env.st.ID,
			ActivityID: act.ID,
			Status:     activity.StatusInProgress,
			StartedAt:  time.Now().UTC(),
		}
		svc := activity.NewService(&racedAttemptRepo{Repository: repo, winner: winner})

		att, err := svc.Start(ctx, env.st, act.ID)
		if err != nil {
			t.Fatalf("Start() failed, %v", err)
		}
		if att.ID != winner.ID {
			t.Errorf("att.ID = %s, want the winning attempt %s", att.ID, winner.ID)
		}
	})

	t.Run("duplicate attempt inserts are refused", func(t *testing.T) {
		act := env.createQuiz(t, time.Now().Add(24*time.Hour))
		att, err := env.svc.Start(ctx, env.st, act.ID)
		if err != nil {
			t.Fatalf("Start() failed, %v", err)
		}

		dup := att
		dup.ID = uuid.New().String()
		if _, err := repo.CreateAttempt(ctx, dup); errors.Cause(err) != activity.ErrAttemptExists {
			t.Errorf("CreateAttempt() error = %v, wantErr %v", err, activity.ErrAttemptExists)
		}
	})

	t.Run("a finalized attempt is immutable", func(t *testing.T) {
		act := env.createQuiz(t, time.Now().Add(24*time.Hour))
		if _, err := env.svc.Start(ctx, env.st, act.ID); err != nil {
			t.Fatalf("Start() failed, %v", err)
		}
		if _, err := env.svc.Submit(ctx, env.st, act.ID, activity.SubmitActivity{Answers: map[string]string{}}); err != nil {
			t.Fatalf("Submit() failed, %v", err)
		}

		att, err := repo.GetAttempt(ctx, env.st.ID, act.ID)
		if err != nil {
			t.Fatalf("GetAttempt() failed, %v", err)
		}
		late := att
		late.Status = activity.StatusSubmitted
		late.Score = 10
		if _, err := repo.UpdateAttempt(ctx, late); errors.Cause(err) != activity.ErrAlreadySubmitted {
			t.Errorf("UpdateAttempt() error = %v, wantErr %v", err, activity.ErrAlreadySubmitted)
		}
		if att, err = repo.GetAttempt(ctx, env.st.ID, act.ID); err != nil || att.Score != 0 {
			t.Errorf("att.Score = %d, want the original 0", att.Score)
		}
	})

	t.Run("a final submission only moves from submitted to graded", func(t *testing.T) {
		asg, err := env.svc.CreateAssignment(ctx, env.teacher, activity.NewAssignment{
			ClassID:    env.class.ID,
			Title:      "Guarded essay",
			Priority:   activity.PriorityLow,
			DueDate:    time.Now().Add(time.Hour),
			StudentIDs: []string{env.st.ID},
		})
		if err != nil {
			t.Fatalf("CreateAssignment() failed, %v", err)
		}
		sub, err := env.svc.SubmitAssignment(ctx, env.st, asg.ID, activity.DraftSubmission{SubmissionText: "Done"})
		if err != nil {
			t.Fatalf("SubmitAssignment() failed, %v", err)
		}

		dup := sub
		dup.ID = uuid.New().String()
		if _, err := repo.CreateSubmission(ctx, dup); errors.Cause(err) != activity.ErrSubmissionExists {
			t.Errorf("CreateSubmission() error = %v, wantErr %v", err, activity.ErrSubmissionExists)
		}

		redraft := sub
		redraft.Status = activity.StatusDraft
		if _, err := repo.UpdateSubmission(ctx, redraft); errors.Cause(err) != activity.ErrAssignmentFinal {
			t.Errorf("UpdateSubmission() error = %v, wantErr %v", err, activity.ErrAssignmentFinal)
		}

		if _, err := env.svc.GradeAssignment(ctx, env.teacher, env.st.ID, asg.ID, activity.GradeSubmission{Grade: 90}); err != nil {
			t.Fatalf("GradeAssignment() failed, %v", err)
		}
	})
}
