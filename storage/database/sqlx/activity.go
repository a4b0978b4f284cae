package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/activity"
)

type activityRepository struct {
	db *sqlx.DB
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *sqlx.DB) *activityRepository {
	return &activityRepository{db: db}
}

type classActivityRow struct {
	ID          string      `db:"id"`
	ClassID     string      `db:"class_id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	Type        string      `db:"type"`
	DueDate     time.Time   `db:"due_date"`
	TotalPoints int         `db:"total_points"`
	CreatedBy   string      `db:"created_by"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r classActivityRow) toActivity() activity.ClassActivity {
	return activity.ClassActivity{
		ID:          r.ID,
		ClassID:     r.ClassID,
		Title:       r.Title,
		Description: r.Description.String,
		Type:        r.Type,
		DueDate:     r.DueDate,
		TotalPoints: r.TotalPoints,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
	}
}

const activityColumns = `id, class_id, title, description, type, due_date, total_points, created_by, created_at`

func (repo activityRepository) CreateActivity(ctx context.Context, act activity.ClassActivity, questions []activity.Question) (activity.ClassActivity, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return activity.ClassActivity{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO class_activity (id, class_id, title, description, type, due_date, total_points, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		act.ID, act.ClassID, act.Title, act.Description, act.Type, act.DueDate.UTC(),
		act.TotalPoints, act.CreatedBy, act.CreatedAt.UTC())
	if err != nil {
		return activity.ClassActivity{}, errors.Wrap(err, "inserting activity")
	}

	for _, q := range questions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO question (id, activity_id, text, type, options, correct_answer, points, "order")
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			q.ID, q.ActivityID, q.Text, q.Type, pq.Array(q.Options), q.CorrectAnswer, q.Points, q.Order)
		if err != nil {
			return activity.ClassActivity{}, errors.Wrap(err, "inserting question")
		}
	}

	if err = tx.Commit(); err != nil {
		return activity.ClassActivity{}, errors.Wrap(err, "committing activity")
	}
	return act, nil
}

func (repo activityRepository) GetActivity(ctx context.Context, id string) (activity.ClassActivity, error) {
	var row classActivityRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+activityColumns+` FROM class_activity WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return activity.ClassActivity{}, activity.ErrActivityNotFound
		}
		return activity.ClassActivity{}, errors.Wrap(err, "getting activity")
	}
	return row.toActivity(), nil
}

func (repo activityRepository) QueryActivitiesByClassIDs(ctx context.Context, classIDs []string) ([]activity.ClassActivity, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+activityColumns+` FROM class_activity
		WHERE class_id IN (?)
		ORDER BY due_date`, classIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building activities query")
	}

	var rows []classActivityRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}

	acts := make([]activity.ClassActivity, 0, len(rows))
	for _, row := range rows {
		acts = append(acts, row.toActivity())
	}
	return acts, nil
}

type questionRow struct {
	ID            string         `db:"id"`
	ActivityID    string         `db:"activity_id"`
	Text          string         `db:"text"`
	Type          string         `db:"type"`
	Options       pq.StringArray `db:"options"`
	CorrectAnswer string         `db:"correct_answer"`
	Points        int            `db:"points"`
	Order         int            `db:"order"`
}

func (r questionRow) toQuestion() activity.Question {
	return activity.Question{
		ID:            r.ID,
		ActivityID:    r.ActivityID,
		Text:          r.Text,
		Type:          r.Type,
		Options:       r.Options,
		CorrectAnswer: r.CorrectAnswer,
		Points:        r.Points,
		Order:         r.Order,
	}
}

const questionColumns = `id, activity_id, text, type, options, correct_answer, points, "order"`

func (repo activityRepository) QueryQuestions(ctx context.Context, activityID string, offset, limit int) ([]activity.Question, int, error) {
	var total int
	err := repo.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM question WHERE activity_id = $1`, activityID)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting questions")
	}

	var rows []questionRow
	err = repo.db.SelectContext(ctx, &rows, `
		SELECT `+questionColumns+` FROM question
		WHERE activity_id = $1
		ORDER BY "order"
		OFFSET $2 LIMIT $3`, activityID, offset, limit)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying questions")
	}

	questions := make([]activity.Question, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, row.toQuestion())
	}
	return questions, total, nil
}

func (repo activityRepository) QueryAllQuestions(ctx context.Context, activityID string) ([]activity.Question, error) {
	var rows []questionRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT `+questionColumns+` FROM question
		WHERE activity_id = $1
		ORDER BY "order"`, activityID)
	if err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}

	questions := make([]activity.Question, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, row.toQuestion())
	}
	return questions, nil
}

type attemptRow struct {
	ID          string      `db:"id"`
	StudentID   string      `db:"student_id"`
	ActivityID  string      `db:"activity_id"`
	Status      string      `db:"status"`
	StartedAt   null.Time   `db:"started_at"`
	SubmittedAt null.Time   `db:"submitted_at"`
	Answers     null.JSON   `db:"answers"`
	Score       null.Int    `db:"score"`
}

func newAttemptRow(att activity.StudentClassActivity) (attemptRow, error) {
	row := attemptRow{
		ID:          att.ID,
		StudentID:   att.StudentID,
		ActivityID:  att.ActivityID,
		Status:      att.Status,
		StartedAt:   null.NewTime(att.StartedAt.UTC(), !att.StartedAt.IsZero()),
		SubmittedAt: null.NewTime(att.SubmittedAt.UTC(), !att.SubmittedAt.IsZero()),
		Score:       null.IntFrom(att.Score),
	}
	if att.Answers != nil {
		raw, err := json.Marshal(att.Answers)
		if err != nil {
			return attemptRow{}, errors.Wrap(err, "encoding answers")
		}
		row.Answers = null.JSONFrom(raw)
	}
	return row, nil
}

func (r attemptRow) toAttempt() (activity.StudentClassActivity, error) {
	att := activity.StudentClassActivity{
		ID:          r.ID,
		StudentID:   r.StudentID,
		ActivityID:  r.ActivityID,
		Status:      r.Status,
		StartedAt:   r.StartedAt.Time,
		SubmittedAt: r.SubmittedAt.Time,
		Score:       r.Score.Int,
	}
	if r.Answers.Valid {
		if err := json.Unmarshal(r.Answers.JSON, &att.Answers); err != nil {
			return activity.StudentClassActivity{}, errors.Wrap(err, "decoding answers")
		}
	}
	return att, nil
}

func (repo activityRepository) GetAttempt(ctx context.Context, studentID, activityID string) (activity.StudentClassActivity, error) {
	var row attemptRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, student_id, activity_id, status, started_at, submitted_at, answers, score
		FROM student_class_activity
		WHERE student_id = $1 AND activity_id = $2`, studentID, activityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return activity.StudentClassActivity{}, activity.ErrAttemptNotFound
		}
		return activity.StudentClassActivity{}, errors.Wrap(err, "getting attempt")
	}
	return row.toAttempt()
}

func (repo activityRepository) CreateAttempt(ctx context.Context, att activity.StudentClassActivity) (activity.StudentClassActivity, error) {
	row, err := newAttemptRow(att)
	if err != nil {
		return activity.StudentClassActivity{}, err
	}
	_, err = repo.db.NamedExecContext(ctx, `
		INSERT INTO student_class_activity (id, student_id, activity_id, status, started_at, submitted_at, answers, score)
		VALUES (:id, :student_id, :activity_id, :status, :started_at, :submitted_at, :answers, :score)`,
		row)
	if err != nil {
		if isUniqueViolation(errors.Cause(err)) {
			return activity.StudentClassActivity{}, activity.ErrAttemptExists
		}
		return activity.StudentClassActivity{}, errors.Wrap(err, "inserting attempt")
	}
	return att, nil
}

func (repo activityRepository) UpdateAttempt(ctx context.Context, att activity.StudentClassActivity) (activity.StudentClassActivity, error) {
	row, err := newAttemptRow(att)
	if err != nil {
		return activity.StudentClassActivity{}, err
	}
	// the status predicate keeps a concurrent submit from overwriting a
	// finalized attempt
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE student_class_activity
		SET status = :status, started_at = :started_at, submitted_at = :submitted_at,
			answers = :answers, score = :score
		WHERE id = :id AND status NOT IN ('submitted', 'graded', 'late')`, row)
	if err != nil {
		return activity.StudentClassActivity{}, errors.Wrap(err, "updating attempt")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, gErr := repo.GetAttempt(ctx, att.StudentID, att.ActivityID); gErr != nil {
			return activity.StudentClassActivity{}, gErr
		}
		return activity.StudentClassActivity{}, activity.ErrAlreadySubmitted
	}
	return att, nil
}

type assignmentRow struct {
	ID          string      `db:"id"`
	ClassID     string      `db:"class_id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	Priority    string      `db:"priority"`
	DueDate     time.Time   `db:"due_date"`
	CreatedBy   string      `db:"created_by"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r assignmentRow) toAssignment() activity.Assignment {
	return activity.Assignment{
		ID:          r.ID,
		ClassID:     r.ClassID,
		Title:       r.Title,
		Description: r.Description.String,
		Priority:    r.Priority,
		DueDate:     r.DueDate,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
	}
}

const assignmentColumns = `id, class_id, title, description, priority, due_date, created_by, created_at`

func (repo activityRepository) CreateAssignment(ctx context.Context, asg activity.Assignment, studentIDs []string) (activity.Assignment, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return activity.Assignment{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignment (id, class_id, title, description, priority, due_date, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		asg.ID, asg.ClassID, asg.Title, asg.Description, asg.Priority, asg.DueDate.UTC(),
		asg.CreatedBy, asg.CreatedAt.UTC())
	if err != nil {
		return activity.Assignment{}, errors.Wrap(err, "inserting assignment")
	}

	for _, studentID := range studentIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO assignment_student (assignment_id, student_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, asg.ID, studentID)
		if err != nil {
			return activity.Assignment{}, errors.Wrap(err, "assigning student")
		}
	}

	if err = tx.Commit(); err != nil {
		return activity.Assignment{}, errors.Wrap(err, "committing assignment")
	}
	return asg, nil
}

func (repo activityRepository) GetAssignment(ctx context.Context, id string) (activity.Assignment, error) {
	var row assignmentRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+assignmentColumns+` FROM assignment WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return activity.Assignment{}, activity.ErrAssignmentNotFound
		}
		return activity.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return row.toAssignment(), nil
}

func (repo activityRepository) QueryAssignmentsByStudent(ctx context.Context, studentID string) ([]activity.Assignment, error) {
	var rows []assignmentRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.class_id, a.title, a.description, a.priority, a.due_date, a.created_by, a.created_at
		FROM assignment a
		JOIN assignment_student ast ON ast.assignment_id = a.id
		WHERE ast.student_id = $1
		ORDER BY a.due_date`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}

	asgs := make([]activity.Assignment, 0, len(rows))
	for _, row := range rows {
		asgs = append(asgs, row.toAssignment())
	}
	return asgs, nil
}

func (repo activityRepository) IsAssignedTo(ctx context.Context, assignmentID, studentID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM assignment_student WHERE assignment_id = $1 AND student_id = $2)`,
		assignmentID, studentID)
	return exists, errors.Wrap(err, "checking assignment membership")
}

type submissionRow struct {
	ID             string       `db:"id"`
	StudentID      string       `db:"student_id"`
	AssignmentID   string       `db:"assignment_id"`
	Status         string       `db:"status"`
	StartedAt      null.Time    `db:"started_at"`
	SubmittedAt    null.Time    `db:"submitted_at"`
	SubmissionText null.String  `db:"submission_text"`
	SubmissionURL  null.String  `db:"submission_url"`
	Grade          null.Float64 `db:"grade"`
	Feedback       null.String  `db:"feedback"`
}

func newSubmissionRow(sub activity.StudentAssignment) submissionRow {
	return submissionRow{
		ID:             sub.ID,
		StudentID:      sub.StudentID,
		AssignmentID:   sub.AssignmentID,
		Status:         sub.Status,
		StartedAt:      null.NewTime(sub.StartedAt.UTC(), !sub.StartedAt.IsZero()),
		SubmittedAt:    null.NewTime(sub.SubmittedAt.UTC(), !sub.SubmittedAt.IsZero()),
		SubmissionText: null.NewString(sub.SubmissionText, sub.SubmissionText != ""),
		SubmissionURL:  null.NewString(sub.SubmissionURL, sub.SubmissionURL != ""),
		Grade:          null.Float64FromPtr(sub.Grade),
		Feedback:       null.NewString(sub.Feedback, sub.Feedback != ""),
	}
}

func (r submissionRow) toSubmission() activity.StudentAssignment {
	return activity.StudentAssignment{
		ID:             r.ID,
		StudentID:      r.StudentID,
		AssignmentID:   r.AssignmentID,
		Status:         r.Status,
		StartedAt:      r.StartedAt.Time,
		SubmittedAt:    r.SubmittedAt.Time,
		SubmissionText: r.SubmissionText.String,
		SubmissionURL:  r.SubmissionURL.String,
		Grade:          r.Grade.Ptr(),
		Feedback:       r.Feedback.String,
	}
}

func (repo activityRepository) GetSubmission(ctx context.Context, studentID, assignmentID string) (activity.StudentAssignment, error) {
	var row submissionRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, student_id, assignment_id, status, started_at, submitted_at,
			submission_text, submission_url, grade, feedback
		FROM student_assignment
		WHERE student_id = $1 AND assignment_id = $2`, studentID, assignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return activity.StudentAssignment{}, activity.ErrSubmissionNotFound
		}
		return activity.StudentAssignment{}, errors.Wrap(err, "getting submission")
	}
	return row.toSubmission(), nil
}

func (repo activityRepository) CreateSubmission(ctx context.Context, sub activity.StudentAssignment) (activity.StudentAssignment, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO student_assignment (id, student_id, assignment_id, status, started_at, submitted_at,
			submission_text, submission_url, grade, feedback)
		VALUES (:id, :student_id, :assignment_id, :status, :started_at, :submitted_at,
			:submission_text, :submission_url, :grade, :feedback)`,
		newSubmissionRow(sub))
	if err != nil {
		if isUniqueViolation(errors.Cause(err)) {
			return activity.StudentAssignment{}, activity.ErrSubmissionExists
		}
		return activity.StudentAssignment{}, errors.Wrap(err, "inserting submission")
	}
	return sub, nil
}

func (repo activityRepository) UpdateSubmission(ctx context.Context, sub activity.StudentAssignment) (activity.StudentAssignment, error) {
	// a final submission only moves from submitted to graded; anything else
	// lost a concurrent write
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE student_assignment
		SET status = :status, started_at = :started_at, submitted_at = :submitted_at,
			submission_text = :submission_text, submission_url = :submission_url,
			grade = :grade, feedback = :feedback
		WHERE id = :id
			AND (status NOT IN ('submitted', 'graded') OR (status = 'submitted' AND :status = 'graded'))`,
		newSubmissionRow(sub))
	if err != nil {
		return activity.StudentAssignment{}, errors.Wrap(err, "updating submission")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, gErr := repo.GetSubmission(ctx, sub.StudentID, sub.AssignmentID); gErr != nil {
			return activity.StudentAssignment{}, gErr
		}
		return activity.StudentAssignment{}, activity.ErrAssignmentFinal
	}
	return sub, nil
}

func (repo activityRepository) IsStudentInClass(ctx context.Context, classID, studentID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM class_student WHERE class_id = $1 AND student_id = $2)`,
		classID, studentID)
	return exists, errors.Wrap(err, "checking class membership")
}

func (repo activityRepository) GetClassTeacherID(ctx context.Context, classID string) (string, error) {
	var teacherID string
	err := repo.db.GetContext(ctx, &teacherID,
		`SELECT teacher_id FROM class WHERE id = $1`, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", academic.ErrClassNotFound
		}
		return "", errors.Wrap(err, "getting class teacher")
	}
	return teacherID, nil
}
