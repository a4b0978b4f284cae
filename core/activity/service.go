package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrActivityNotFound   = core.NewNotFoundError("activity not found")
	ErrAssignmentNotFound = core.NewNotFoundError("assignment not found")
	ErrAttemptNotFound    = core.NewNotFoundError("attempt not found")
	ErrSubmissionNotFound = core.NewNotFoundError("submission not found")
	ErrNotEnrolled        = core.NewForbiddenError("not enrolled in this class")
	ErrNotAssigned        = core.NewForbiddenError("assignment not assigned to this student")
	ErrNotStarted         = core.NewForbiddenError("activity must be started first")
	ErrNotClassTeacher    = core.NewForbiddenError("not the teacher of this class")
	ErrAlreadySubmitted   = core.NewConflictError("activity already submitted")
	ErrAttemptExists      = core.NewConflictError("attempt already exists")
	ErrSubmissionExists   = core.NewConflictError("submission already exists")
	ErrAssignmentFinal    = core.NewConflictError("assignment already submitted")
	ErrNoSubmission       = core.NewConflictError("no submission found")
	ErrNotGradable        = core.NewConflictError("submission is not ready for grading")
)

type (
	Repository interface {
		CreateActivity(ctx context.Context, act ClassActivity, questions []Question) (ClassActivity, error)
		GetActivity(ctx context.Context, id string) (ClassActivity, error)
		QueryActivitiesByClassIDs(ctx context.Context, classIDs []string) ([]ClassActivity, error)
		// QueryQuestions returns an ordered page of questions plus the total count.
		QueryQuestions(ctx context.Context, activityID string, offset, limit int) ([]Question, int, error)
		QueryAllQuestions(ctx context.Context, activityID string) ([]Question, error)

		GetAttempt(ctx context.Context, studentID, activityID string) (StudentClassActivity, error)
		CreateAttempt(ctx context.Context, att StudentClassActivity) (StudentClassActivity, error)
		UpdateAttempt(ctx context.Context, att StudentClassActivity) (StudentClassActivity, error)

		CreateAssignment(ctx context.Context, asg Assignment, studentIDs []string) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		QueryAssignmentsByStudent(ctx context.Context, studentID string) ([]Assignment, error)
		IsAssignedTo(ctx context.Context, assignmentID, studentID string) (bool, error)

		GetSubmission(ctx context.Context, studentID, assignmentID string) (StudentAssignment, error)
		CreateSubmission(ctx context.Context, sub StudentAssignment) (StudentAssignment, error)
		UpdateSubmission(ctx context.Context, sub StudentAssignment) (StudentAssignment, error)

		IsStudentInClass(ctx context.Context, classID, studentID string) (bool, error)
		GetClassTeacherID(ctx context.Context, classID string) (string, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// registeredActivity loads the activity and checks the student's enrollment.
func (svc *Service) registeredActivity(ctx context.Context, st user.Student, activityID string) (ClassActivity, error) {
	act, err := svc.repo.GetActivity(ctx, activityID)
	if err != nil {
		return ClassActivity{}, errors.Wrap(err, "finding activity")
	}
	enrolled, err := svc.repo.IsStudentInClass(ctx, act.ClassID, st.ID)
	if err != nil {
		return ClassActivity{}, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return ClassActivity{}, ErrNotEnrolled
	}
	return act, nil
}

// List returns the activities of the student's classes, filtered by due
// date: all | upcoming | past.
func (svc *Service) List(ctx context.Context, st user.Student, classIDs []string, filter string) ([]ActivityListItem, error) {
	acts, err := svc.repo.QueryActivitiesByClassIDs(ctx, classIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}

	now := NowFunc().UTC()
	items := make([]ActivityListItem, 0, len(acts))
	for _, act := range acts {
		switch filter {
		case FilterUpcoming:
			if act.DueDate.Before(now) {
				continue
			}
		case FilterPast:
			if !act.DueDate.Before(now) {
				continue
			}
		}

		status := StatusPending
		if att, err := svc.repo.GetAttempt(ctx, st.ID, act.ID); err == nil {
			status = att.Status
		} else if !core.IsNotFound(errors.Cause(err)) {
			return nil, errors.Wrap(err, "finding attempt")
		}
		items = append(items, ActivityListItem{ClassActivity: act, AttemptStatus: status})
	}
	return items, nil
}

// Detail returns the activity metadata along with the student's attempt state.
func (svc *Service) Detail(ctx context.Context, st user.Student, activityID string) (ActivityDetail, error) {
	act, err := svc.registeredActivity(ctx, st, activityID)
	if err != nil {
		return ActivityDetail{}, err
	}

	_, total, err := svc.repo.QueryQuestions(ctx, activityID, 0, 1)
	if err != nil {
		return ActivityDetail{}, errors.Wrap(err, "counting questions")
	}

	detail := ActivityDetail{
		ClassActivity: act,
		AttemptStatus: StatusPending,
		QuestionCount: total,
	}
	att, err := svc.repo.GetAttempt(ctx, st.ID, activityID)
	if err == nil {
		detail.AttemptStatus = att.Status
		detail.StartedAt = att.StartedAt
		detail.SubmittedAt = att.SubmittedAt
		detail.Score = att.Score
	} else if !core.IsNotFound(errors.Cause(err)) {
		return ActivityDetail{}, errors.Wrap(err, "finding attempt")
	}
	return detail, nil
}

// Start opens an attempt. Re-starting an open attempt returns it unchanged;
// starting a submitted one is a conflict.
func (svc *Service) Start(ctx context.Context, st user.Student, activityID string) (StudentClassActivity, error) {
	if _, err := svc.registeredActivity(ctx, st, activityID); err != nil {
		return StudentClassActivity{}, err
	}

	att, err := svc.repo.GetAttempt(ctx, st.ID, activityID)
	if err == nil {
		if att.IsSubmitted() {
			return StudentClassActivity{}, ErrAlreadySubmitted
		}
		return att, nil
	}
	if !core.IsNotFound(errors.Cause(err)) {
		return StudentClassActivity{}, errors.Wrap(err, "finding attempt")
	}

	att = StudentClassActivity{
		ID:         uuid.New().String(),
		StudentID:  st.ID,
		ActivityID: activityID,
		Status:     StatusInProgress,
		StartedAt:  NowFunc().UTC(),
	}
	created, err := svc.repo.CreateAttempt(ctx, att)
	if err != nil {
		// lost a concurrent start; fall back to the winning attempt
		if errors.Cause(err) == ErrAttemptExists {
			att, err = svc.repo.GetAttempt(ctx, st.ID, activityID)
			if err != nil {
				return StudentClassActivity{}, errors.Wrap(err, "finding attempt")
			}
			if att.IsSubmitted() {
				return StudentClassActivity{}, ErrAlreadySubmitted
			}
			return att, nil
		}
		return StudentClassActivity{}, errors.Wrap(err, "creating attempt")
	}
	return created, nil
}

// Questions pages through the activity's questions. The attempt must have
// been started first.
func (svc *Service) Questions(ctx context.Context, st user.Student, activityID string, page, pageSize int) (QuestionPage, error) {
	if _, err := svc.registeredActivity(ctx, st, activityID); err != nil {
		return QuestionPage{}, err
	}
	if _, err := svc.repo.GetAttempt(ctx, st.ID, activityID); err != nil {
		if core.IsNotFound(errors.Cause(err)) {
			return QuestionPage{}, ErrNotStarted
		}
		return QuestionPage{}, errors.Wrap(err, "finding attempt")
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	questions, total, err := svc.repo.QueryQuestions(ctx, activityID, (page-1)*pageSize, pageSize)
	if err != nil {
		return QuestionPage{}, errors.Wrap(err, "querying questions")
	}
	if questions == nil {
		questions = []Question{}
	}
	return QuestionPage{
		Questions: questions,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}, nil
}

// Submit grades the attempt and closes it. Answers are matched against the
// correct answers by exact string equality. Submissions past the due date
// are marked late but still scored.
func (svc *Service) Submit(ctx context.Context, st user.Student, activityID string, sub SubmitActivity) (SubmissionResult, error) {
	act, err := svc.registeredActivity(ctx, st, activityID)
	if err != nil {
		return SubmissionResult{}, err
	}

	att, err := svc.repo.GetAttempt(ctx, st.ID, activityID)
	if err != nil {
		if core.IsNotFound(errors.Cause(err)) {
			return SubmissionResult{}, ErrNotStarted
		}
		return SubmissionResult{}, errors.Wrap(err, "finding attempt")
	}
	if att.IsSubmitted() {
		return SubmissionResult{}, ErrAlreadySubmitted
	}

	questions, err := svc.repo.QueryAllQuestions(ctx, activityID)
	if err != nil {
		return SubmissionResult{}, errors.Wrap(err, "querying questions")
	}

	var score, totalPoints int
	for _, q := range questions {
		totalPoints += q.Points
		if answer, ok := sub.Answers[q.ID]; ok && answer == q.CorrectAnswer {
			score += q.Points
		}
	}

	now := NowFunc().UTC()
	status := StatusSubmitted
	if now.After(act.DueDate) {
		status = StatusLate
	}

	att.Status = status
	att.SubmittedAt = now
	att.Score = score
	att.Answers = sub.Answers
	if _, err := svc.repo.UpdateAttempt(ctx, att); err != nil {
		return SubmissionResult{}, errors.Wrap(err, "saving attempt")
	}

	return SubmissionResult{
		Status:      status,
		Score:       score,
		TotalPoints: totalPoints,
	}, nil
}

// Create adds a class activity with its questions to one of the teacher's classes.
func (svc *Service) Create(ctx context.Context, teacher user.User, na NewClassActivity) (ClassActivity, error) {
	if err := svc.checkClassTeacher(ctx, teacher, na.ClassID); err != nil {
		return ClassActivity{}, err
	}

	var totalPoints int
	act := ClassActivity{
		ID:          uuid.New().String(),
		ClassID:     na.ClassID,
		Title:       na.Title,
		Description: na.Description,
		Type:        na.Type,
		DueDate:     na.DueDate.UTC(),
		CreatedBy:   teacher.ID,
		CreatedAt:   NowFunc().UTC(),
	}
	questions := make([]Question, 0, len(na.Questions))
	for i, nq := range na.Questions {
		totalPoints += nq.Points
		questions = append(questions, Question{
			ID:            uuid.New().String(),
			ActivityID:    act.ID,
			Text:          nq.Text,
			Type:          nq.Type,
			Options:       nq.Options,
			CorrectAnswer: nq.CorrectAnswer,
			Points:        nq.Points,
			Order:         i + 1,
		})
	}
	act.TotalPoints = totalPoints
	return svc.repo.CreateActivity(ctx, act, questions)
}

func (svc *Service) checkClassTeacher(ctx context.Context, teacher user.User, classID string) error {
	teacherID, err := svc.repo.GetClassTeacherID(ctx, classID)
	if err != nil {
		return errors.Wrap(err, "finding class teacher")
	}
	if teacherID != teacher.ID && !teacher.IsAdmin() {
		return ErrNotClassTeacher
	}
	return nil
}

// Assignments

// ListAssignments returns the student's assignments filtered by submission
// status: all | pending | submitted.
func (svc *Service) ListAssignments(ctx context.Context, st user.Student, filter string) ([]AssignmentListItem, error) {
	asgs, err := svc.repo.QueryAssignmentsByStudent(ctx, st.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}

	items := make([]AssignmentListItem, 0, len(asgs))
	for _, asg := range asgs {
		status := StatusPending
		if sub, err := svc.repo.GetSubmission(ctx, st.ID, asg.ID); err == nil {
			status = sub.Status
		} else if !core.IsNotFound(errors.Cause(err)) {
			return nil, errors.Wrap(err, "finding submission")
		}

		switch filter {
		case FilterPending:
			if status == StatusSubmitted || status == StatusGraded {
				continue
			}
		case FilterSubmitted:
			if status != StatusSubmitted && status != StatusGraded {
				continue
			}
		}
		items = append(items, AssignmentListItem{Assignment: asg, SubmissionStatus: status})
	}
	return items, nil
}

// assignedTo loads the assignment and checks it was assigned to the student.
func (svc *Service) assignedTo(ctx context.Context, st user.Student, assignmentID string) (Assignment, error) {
	asg, err := svc.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "finding assignment")
	}
	assigned, err := svc.repo.IsAssignedTo(ctx, assignmentID, st.ID)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "checking assignment")
	}
	if !assigned {
		return Assignment{}, ErrNotAssigned
	}
	return asg, nil
}

// AssignmentDetail returns the assignment with the student's submission state.
func (svc *Service) AssignmentDetail(ctx context.Context, st user.Student, assignmentID string) (AssignmentListItem, error) {
	asg, err := svc.assignedTo(ctx, st, assignmentID)
	if err != nil {
		return AssignmentListItem{}, err
	}

	status := StatusPending
	if sub, err := svc.repo.GetSubmission(ctx, st.ID, assignmentID); err == nil {
		status = sub.Status
	} else if !core.IsNotFound(errors.Cause(err)) {
		return AssignmentListItem{}, errors.Wrap(err, "finding submission")
	}
	return AssignmentListItem{Assignment: asg, SubmissionStatus: status}, nil
}

// StartAssignment opens the submission workspace. A workspace past pending
// is returned unchanged.
func (svc *Service) StartAssignment(ctx context.Context, st user.Student, assignmentID string) (StudentAssignment, error) {
	if _, err := svc.assignedTo(ctx, st, assignmentID); err != nil {
		return StudentAssignment{}, err
	}

	sub, err := svc.repo.GetSubmission(ctx, st.ID, assignmentID)
	if err != nil {
		if !core.IsNotFound(errors.Cause(err)) {
			return StudentAssignment{}, errors.Wrap(err, "finding submission")
		}
		sub = StudentAssignment{
			ID:           uuid.New().String(),
			StudentID:    st.ID,
			AssignmentID: assignmentID,
			Status:       StatusInProgress,
			StartedAt:    NowFunc().UTC(),
		}
		created, cErr := svc.repo.CreateSubmission(ctx, sub)
		if cErr == nil {
			return created, nil
		}
		if errors.Cause(cErr) != ErrSubmissionExists {
			return StudentAssignment{}, errors.Wrap(cErr, "creating submission")
		}
		// lost a concurrent start; fall back to the winning workspace
		if sub, err = svc.repo.GetSubmission(ctx, st.ID, assignmentID); err != nil {
			return StudentAssignment{}, errors.Wrap(err, "finding submission")
		}
	}

	if sub.Status != StatusPending {
		return sub, nil
	}
	sub.Status = StatusInProgress
	sub.StartedAt = NowFunc().UTC()
	return svc.repo.UpdateSubmission(ctx, sub)
}

// SaveDraft stores work-in-progress content. Rejected once the submission
// is final. Last write wins.
func (svc *Service) SaveDraft(ctx context.Context, st user.Student, assignmentID string, draft DraftSubmission) (StudentAssignment, error) {
	if _, err := svc.assignedTo(ctx, st, assignmentID); err != nil {
		return StudentAssignment{}, err
	}

	sub, err := svc.repo.GetSubmission(ctx, st.ID, assignmentID)
	if err != nil {
		if !core.IsNotFound(errors.Cause(err)) {
			return StudentAssignment{}, errors.Wrap(err, "finding submission")
		}
		sub = StudentAssignment{
			ID:           uuid.New().String(),
			StudentID:    st.ID,
			AssignmentID: assignmentID,
			Status:       StatusDraft,
			StartedAt:    NowFunc().UTC(),
		}
		sub.SubmissionText = draft.SubmissionText
		sub.SubmissionURL = draft.SubmissionURL
		created, cErr := svc.repo.CreateSubmission(ctx, sub)
		if cErr == nil {
			return created, nil
		}
		if errors.Cause(cErr) != ErrSubmissionExists {
			return StudentAssignment{}, errors.Wrap(cErr, "creating submission")
		}
		// lost a concurrent write; save onto the winning workspace
		if sub, err = svc.repo.GetSubmission(ctx, st.ID, assignmentID); err != nil {
			return StudentAssignment{}, errors.Wrap(err, "finding submission")
		}
	}

	if sub.IsFinal() {
		return StudentAssignment{}, ErrAssignmentFinal
	}
	sub.Status = StatusDraft
	sub.SubmissionText = draft.SubmissionText
	sub.SubmissionURL = draft.SubmissionURL
	return svc.repo.UpdateSubmission(ctx, sub)
}

// SubmitAssignment finalizes the submission. Content passed here overrides
// any saved draft.
func (svc *Service) SubmitAssignment(ctx context.Context, st user.Student, assignmentID string, draft DraftSubmission) (StudentAssignment, error) {
	if _, err := svc.assignedTo(ctx, st, assignmentID); err != nil {
		return StudentAssignment{}, err
	}

	now := NowFunc().UTC()
	sub, err := svc.repo.GetSubmission(ctx, st.ID, assignmentID)
	if err != nil {
		if !core.IsNotFound(errors.Cause(err)) {
			return StudentAssignment{}, errors.Wrap(err, "finding submission")
		}
		sub = StudentAssignment{
			ID:           uuid.New().String(),
			StudentID:    st.ID,
			AssignmentID: assignmentID,
			Status:       StatusSubmitted,
			StartedAt:    now,
			SubmittedAt:  now,
		}
		sub.SubmissionText = draft.SubmissionText
		sub.SubmissionURL = draft.SubmissionURL
		created, cErr := svc.repo.CreateSubmission(ctx, sub)
		if cErr == nil {
			return created, nil
		}
		if errors.Cause(cErr) != ErrSubmissionExists {
			return StudentAssignment{}, errors.Wrap(cErr, "creating submission")
		}
		// lost a concurrent write; submit the winning workspace
		if sub, err = svc.repo.GetSubmission(ctx, st.ID, assignmentID); err != nil {
			return StudentAssignment{}, errors.Wrap(err, "finding submission")
		}
	}

	if sub.IsFinal() {
		return StudentAssignment{}, ErrAssignmentFinal
	}
	if draft.SubmissionText != "" {
		sub.SubmissionText = draft.SubmissionText
	}
	if draft.SubmissionURL != "" {
		sub.SubmissionURL = draft.SubmissionURL
	}
	sub.Status = StatusSubmitted
	sub.SubmittedAt = now
	return svc.repo.UpdateSubmission(ctx, sub)
}

// PreviewSubmission formats the prospective submission without changing state.
func (svc *Service) PreviewSubmission(ctx context.Context, st user.Student, assignmentID string) (StudentAssignment, error) {
	if _, err := svc.assignedTo(ctx, st, assignmentID); err != nil {
		return StudentAssignment{}, err
	}

	sub, err := svc.repo.GetSubmission(ctx, st.ID, assignmentID)
	if err != nil {
		if core.IsNotFound(errors.Cause(err)) {
			return StudentAssignment{
				StudentID:    st.ID,
				AssignmentID: assignmentID,
				Status:       StatusPending,
			}, nil
		}
		return StudentAssignment{}, errors.Wrap(err, "finding submission")
	}
	return sub, nil
}

// ViewSubmission returns the submitted work. Only final submissions are viewable.
func (svc *Service) ViewSubmission(ctx context.Context, st user.Student, assignmentID string) (StudentAssignment, error) {
	if _, err := svc.assignedTo(ctx, st, assignmentID); err != nil {
		return StudentAssignment{}, err
	}

	sub, err := svc.repo.GetSubmission(ctx, st.ID, assignmentID)
	if err != nil {
		if core.IsNotFound(errors.Cause(err)) {
			return StudentAssignment{}, ErrNoSubmission
		}
		return StudentAssignment{}, errors.Wrap(err, "finding submission")
	}
	if !sub.IsFinal() {
		return StudentAssignment{}, ErrNoSubmission
	}
	return sub, nil
}

// CreateAssignment hands out an assignment to a set of students in one of
// the teacher's classes.
func (svc *Service) CreateAssignment(ctx context.Context, teacher user.User, na NewAssignment) (Assignment, error) {
	if err := svc.checkClassTeacher(ctx, teacher, na.ClassID); err != nil {
		return Assignment{}, err
	}

	asg := Assignment{
		ID:          uuid.New().String(),
		ClassID:     na.ClassID,
		Title:       na.Title,
		Description: na.Description,
		Priority:    na.Priority,
		DueDate:     na.DueDate.UTC(),
		CreatedBy:   teacher.ID,
		CreatedAt:   NowFunc().UTC(),
	}
	return svc.repo.CreateAssignment(ctx, asg, na.StudentIDs)
}

// GradeAssignment records the teacher's grade on a submitted assignment.
func (svc *Service) GradeAssignment(ctx context.Context, teacher user.User, studentID, assignmentID string, gs GradeSubmission) (StudentAssignment, error) {
	asg, err := svc.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return StudentAssignment{}, errors.Wrap(err, "finding assignment")
	}
	if err := svc.checkClassTeacher(ctx, teacher, asg.ClassID); err != nil {
		return StudentAssignment{}, err
	}

	sub, err := svc.repo.GetSubmission(ctx, studentID, assignmentID)
	if err != nil {
		if core.IsNotFound(errors.Cause(err)) {
			return StudentAssignment{}, ErrSubmissionNotFound
		}
		return StudentAssignment{}, errors.Wrap(err, "finding submission")
	}
	if sub.Status != StatusSubmitted {
		return StudentAssignment{}, ErrNotGradable
	}

	sub.Status = StatusGraded
	sub.Grade = &gs.Grade
	sub.Feedback = gs.Feedback
	return svc.repo.UpdateSubmission(ctx, sub)
}
