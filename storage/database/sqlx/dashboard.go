package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/dashboard"
)

type dashboardRepository struct {
	db *sqlx.DB
}

var _ dashboard.Repository = (*dashboardRepository)(nil) // interface compliance check

func NewDashboardRepository(db *sqlx.DB) *dashboardRepository {
	return &dashboardRepository{db: db}
}

func (repo dashboardRepository) GetNextClass(ctx context.Context, studentID string, now time.Time) (dashboard.NextClass, bool, error) {
	type nextClassRow struct {
		ClassID     string `db:"class_id"`
		Subject     string `db:"subject"`
		TeacherName string `db:"teacher_name"`
		StartTime   string `db:"start_time"`
		EndTime     string `db:"end_time"`
	}

	var row nextClassRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT c.id AS class_id, c.subject, TRIM(u.first_name || ' ' || u.last_name) AS teacher_name,
			c.start_time, c.end_time
		FROM student_class_registration r
		JOIN class c ON c.id = r.class_id
		JOIN "user" u ON u.id = c.teacher_id
		WHERE r.student_id = $1 AND c.is_active AND c.start_time > $2
		ORDER BY c.start_time
		LIMIT 1`, studentID, now.Format("15:04"))
	if err != nil {
		if err == sql.ErrNoRows {
			return dashboard.NextClass{}, false, nil
		}
		return dashboard.NextClass{}, false, errors.Wrap(err, "getting next class")
	}
	return dashboard.NextClass(row), true, nil
}

func (repo dashboardRepository) QueryUpcomingActivities(ctx context.Context, studentID string, now time.Time, limit int, types ...string) ([]dashboard.UpcomingActivity, error) {
	query := `
		SELECT ca.id AS activity_id, ca.title, ca.type, c.subject, ca.due_date
		FROM class_activity ca
		JOIN class c ON c.id = ca.class_id
		JOIN student_class_registration r ON r.class_id = c.id
		WHERE r.student_id = ? AND ca.due_date > ?`
	args := []interface{}{studentID, now.UTC()}
	if len(types) > 0 {
		query += ` AND ca.type IN (?)`
		args = append(args, types)
	}
	query += ` ORDER BY ca.due_date LIMIT ?`
	args = append(args, limit)

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building upcoming activities query")
	}

	type upcomingRow struct {
		ActivityID string    `db:"activity_id"`
		Title      string    `db:"title"`
		Type       string    `db:"type"`
		Subject    string    `db:"subject"`
		DueDate    time.Time `db:"due_date"`
	}
	var rows []upcomingRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), inArgs...); err != nil {
		return nil, errors.Wrap(err, "querying upcoming activities")
	}

	upcoming := make([]dashboard.UpcomingActivity, 0, len(rows))
	for _, row := range rows {
		upcoming = append(upcoming, dashboard.UpcomingActivity(row))
	}
	return upcoming, nil
}

func (repo dashboardRepository) GetAcademicProgress(ctx context.Context, studentID string) (dashboard.AcademicProgress, error) {
	type progressRow struct {
		StudentID     string       `db:"student_id"`
		CGPA          null.Float64 `db:"cgpa"`
		GPA           null.Float64 `db:"gpa"`
		Grades        null.JSON    `db:"grades"`
		CreditsEarned null.Int     `db:"credits_earned"`
		UpdatedAt     time.Time    `db:"updated_at"`
	}

	var row progressRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT student_id, cgpa, gpa, grades, credits_earned, updated_at
		FROM academic_progress WHERE student_id = $1`, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return dashboard.AcademicProgress{StudentID: studentID}, nil
		}
		return dashboard.AcademicProgress{}, errors.Wrap(err, "getting academic progress")
	}

	progress := dashboard.AcademicProgress{
		StudentID:     row.StudentID,
		CGPA:          row.CGPA.Float64,
		GPA:           row.GPA.Float64,
		CreditsEarned: row.CreditsEarned.Int,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.Grades.Valid {
		if err = json.Unmarshal(row.Grades.JSON, &progress.Grades); err != nil {
			return dashboard.AcademicProgress{}, errors.Wrap(err, "decoding grades")
		}
	}
	return progress, nil
}

func (repo dashboardRepository) QuerySemesterResults(ctx context.Context, studentID string) ([]dashboard.SemesterResult, error) {
	type resultRow struct {
		StudentID string  `db:"student_id"`
		Session   string  `db:"session"`
		Semester  string  `db:"semester"`
		GPA       float64 `db:"gpa"`
		Credits   int     `db:"credits"`
	}

	var rows []resultRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT student_id, session, semester, gpa, credits
		FROM semester_result WHERE student_id = $1
		ORDER BY session, semester`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying semester results")
	}

	results := make([]dashboard.SemesterResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, dashboard.SemesterResult(row))
	}
	return results, nil
}

func (repo dashboardRepository) QueryReminders(ctx context.Context, userID string, now time.Time, limit int) ([]academic.Reminder, error) {
	type reminderRow struct {
		ID        string      `db:"id"`
		UserID    string      `db:"user_id"`
		SessionID null.String `db:"session_id"`
		Title     string      `db:"title"`
		RemindAt  time.Time   `db:"remind_at"`
		CreatedAt time.Time   `db:"created_at"`
	}

	var rows []reminderRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, session_id, title, remind_at, created_at
		FROM reminder
		WHERE user_id = $1 AND remind_at > $2
		ORDER BY remind_at
		LIMIT $3`, userID, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying reminders")
	}

	reminders := make([]academic.Reminder, 0, len(rows))
	for _, row := range rows {
		reminders = append(reminders, academic.Reminder{
			ID:        row.ID,
			UserID:    row.UserID,
			SessionID: row.SessionID.String,
			Title:     row.Title,
			RemindAt:  row.RemindAt,
			CreatedAt: row.CreatedAt,
		})
	}
	return reminders, nil
}

func (repo dashboardRepository) QueryLatestForumTopics(ctx context.Context, limit int) ([]dashboard.ForumTopic, error) {
	type topicRow struct {
		ID         string    `db:"id"`
		Title      string    `db:"title"`
		AuthorName string    `db:"author_name"`
		Replies    int       `db:"replies"`
		CreatedAt  time.Time `db:"created_at"`
	}

	var rows []topicRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, title, author_name, replies, created_at
		FROM forum_topic
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying forum topics")
	}

	topics := make([]dashboard.ForumTopic, 0, len(rows))
	for _, row := range rows {
		topics = append(topics, dashboard.ForumTopic(row))
	}
	return topics, nil
}

func (repo dashboardRepository) QueryUpcomingEvents(ctx context.Context, now time.Time, limit int) ([]dashboard.Event, error) {
	type eventRow struct {
		ID       string      `db:"id"`
		Title    string      `db:"title"`
		Location null.String `db:"location"`
		StartsAt time.Time   `db:"starts_at"`
	}

	var rows []eventRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, title, location, starts_at
		FROM event
		WHERE starts_at > $1
		ORDER BY starts_at
		LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying events")
	}

	events := make([]dashboard.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, dashboard.Event{
			ID:       row.ID,
			Title:    row.Title,
			Location: row.Location.String,
			StartsAt: row.StartsAt,
		})
	}
	return events, nil
}

func (repo dashboardRepository) QueryTodayClasses(ctx context.Context, teacherID string, now time.Time) ([]academic.Class, error) {
	var rows []classRow
	err := repo.db.SelectContext(ctx, &rows,
		classQuery+` WHERE c.teacher_id = $1 AND c.is_active AND $2 BETWEEN c.start_date AND c.end_date
		ORDER BY c.start_time`, teacherID, now.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "querying today's classes")
	}

	classes := make([]academic.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.toClass())
	}
	return classes, nil
}

func (repo dashboardRepository) CountActiveStudentsByTeacher(ctx context.Context, teacherID string) (dashboard.GenderCount, error) {
	type genderRow struct {
		Gender null.String `db:"gender"`
	}

	var rows []genderRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (s.id) s.gender
		FROM class_student cs
		JOIN class c ON c.id = cs.class_id
		JOIN student s ON s.id = cs.student_id
		WHERE c.teacher_id = $1 AND c.is_active`, teacherID)
	if err != nil {
		return dashboard.GenderCount{}, errors.Wrap(err, "counting active students")
	}

	var count dashboard.GenderCount
	for _, row := range rows {
		count.Total++
		switch strings.ToLower(row.Gender.String) {
		case "male", "m":
			count.Male++
		case "female", "f":
			count.Female++
		default:
			count.Other++
		}
	}
	return count, nil
}

func (repo dashboardRepository) CountPendingGrades(ctx context.Context, teacherID string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM student_assignment sa
		JOIN assignment a ON a.id = sa.assignment_id
		JOIN class c ON c.id = a.class_id
		WHERE c.teacher_id = $1 AND sa.status = 'submitted'`, teacherID)
	return count, errors.Wrap(err, "counting pending grades")
}

func (repo dashboardRepository) QueryRecentActivityLogs(ctx context.Context, userID string, limit int) ([]dashboard.ActivityLog, error) {
	type logRow struct {
		ID        string      `db:"id"`
		UserID    string      `db:"user_id"`
		Action    string      `db:"action"`
		Detail    null.String `db:"detail"`
		CreatedAt time.Time   `db:"created_at"`
	}

	var rows []logRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, action, detail, created_at
		FROM activity_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying activity logs")
	}

	logs := make([]dashboard.ActivityLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, dashboard.ActivityLog{
			ID:        row.ID,
			UserID:    row.UserID,
			Action:    row.Action,
			Detail:    row.Detail.String,
			CreatedAt: row.CreatedAt,
		})
	}
	return logs, nil
}

func (repo dashboardRepository) CreateActivityLog(ctx context.Context, entry dashboard.ActivityLog) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, user_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.UserID, entry.Action,
		null.NewString(entry.Detail, entry.Detail != ""), entry.CreatedAt.UTC())
	return errors.Wrap(err, "inserting activity log")
}

func (repo dashboardRepository) GetAttendanceSummary(ctx context.Context, studentID string) (dashboard.AttendanceSummary, error) {
	type summaryRow struct {
		Present int `db:"present"`
		Absent  int `db:"absent"`
		Late    int `db:"late"`
		Excused int `db:"excused"`
	}

	var row summaryRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT COUNT(*) FILTER (WHERE status = 'present') AS present,
			COUNT(*) FILTER (WHERE status = 'absent') AS absent,
			COUNT(*) FILTER (WHERE status = 'late') AS late,
			COUNT(*) FILTER (WHERE status = 'excused') AS excused
		FROM attendance WHERE student_id = $1`, studentID)
	return dashboard.AttendanceSummary(row), errors.Wrap(err, "getting attendance summary")
}

func (repo dashboardRepository) GetFeeTotals(ctx context.Context, studentID string) (dashboard.FeeTotals, error) {
	type totalsRow struct {
		Paid    float64 `db:"paid"`
		Pending float64 `db:"pending"`
		Overdue float64 `db:"overdue"`
	}

	var row totalsRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE status = 'paid'), 0) AS paid,
			COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0) AS pending,
			COALESCE(SUM(amount) FILTER (WHERE status = 'overdue'), 0) AS overdue
		FROM fee WHERE student_id = $1`, studentID)
	return dashboard.FeeTotals(row), errors.Wrap(err, "getting fee totals")
}

func (repo dashboardRepository) CountUnreadMessages(ctx context.Context, userID string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM message WHERE user_id = $1 AND NOT is_read`, userID)
	return count, errors.Wrap(err, "counting unread messages")
}

func (repo dashboardRepository) QueryRecentPayments(ctx context.Context, studentID string, limit int) ([]dashboard.Payment, error) {
	type paymentRow struct {
		ID          string      `db:"id"`
		StudentID   string      `db:"student_id"`
		Description null.String `db:"description"`
		Amount      float64     `db:"amount"`
		PaidAt      time.Time   `db:"paid_at"`
	}

	var rows []paymentRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, student_id, description, amount, paid_at
		FROM payment
		WHERE student_id = $1
		ORDER BY paid_at DESC
		LIMIT $2`, studentID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}

	payments := make([]dashboard.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, dashboard.Payment{
			ID:          row.ID,
			StudentID:   row.StudentID,
			Description: row.Description.String,
			Amount:      row.Amount,
			PaidAt:      row.PaidAt,
		})
	}
	return payments, nil
}
