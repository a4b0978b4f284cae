package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/user"
)

type academicRepository struct {
	db *sqlx.DB
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *sqlx.DB) *academicRepository {
	return &academicRepository{db: db}
}

type classRow struct {
	ID         string    `db:"id"`
	Subject    string    `db:"subject"`
	Type       string    `db:"type"`
	GradeLevel string    `db:"grade_level"`
	TeacherID  string    `db:"teacher_id"`
	StartDate  time.Time `db:"start_date"`
	EndDate    time.Time `db:"end_date"`
	StartTime  string    `db:"start_time"`
	EndTime    string    `db:"end_time"`
	IsActive   bool      `db:"is_active"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`

	TeacherFirstName string `db:"teacher_first_name"`
	TeacherLastName  string `db:"teacher_last_name"`
}

func (r classRow) toClass() academic.Class {
	return academic.Class{
		ID:         r.ID,
		Subject:    r.Subject,
		Type:       r.Type,
		GradeLevel: r.GradeLevel,
		TeacherID:  r.TeacherID,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Teacher: user.User{
			ID:        r.TeacherID,
			FirstName: r.TeacherFirstName,
			LastName:  r.TeacherLastName,
			Role:      user.RoleTeacher,
		},
	}
}

const classQuery = `
	SELECT c.id, c.subject, c.type, c.grade_level, c.teacher_id, c.start_date, c.end_date,
		c.start_time, c.end_time, c.is_active, c.created_at, c.updated_at,
		u.first_name AS teacher_first_name, u.last_name AS teacher_last_name
	FROM class c
	JOIN "user" u ON u.id = c.teacher_id`

func (repo academicRepository) getClass(ctx context.Context, query string, args ...interface{}) (academic.Class, error) {
	var row classRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return academic.Class{}, academic.ErrClassNotFound
		}
		return academic.Class{}, errors.Wrap(err, "getting class")
	}
	return row.toClass(), nil
}

func (repo academicRepository) GetClassByID(ctx context.Context, id string) (academic.Class, error) {
	return repo.getClass(ctx, classQuery+` WHERE c.id = $1`, id)
}

func (repo academicRepository) QueryActiveClassesByGrade(ctx context.Context, grade string) ([]academic.Class, error) {
	var rows []classRow
	err := repo.db.SelectContext(ctx, &rows,
		classQuery+` WHERE c.grade_level = $1 AND c.is_active ORDER BY c.subject`, grade)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes by grade")
	}
	classes := make([]academic.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.toClass())
	}
	return classes, nil
}

func (repo academicRepository) GetActiveClassBySubjectAndGrade(ctx context.Context, subject, grade string) (academic.Class, error) {
	return repo.getClass(ctx,
		classQuery+` WHERE LOWER(c.subject) = LOWER($1) AND c.grade_level = $2 AND c.is_active`,
		subject, grade)
}

func (repo academicRepository) CreateRegistration(ctx context.Context, reg academic.StudentClassRegistration) (academic.StudentClassRegistration, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO student_class_registration (id, student_id, class_id, session_year, term, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		reg.ID, reg.StudentID, reg.ClassID, reg.SessionYear, reg.Term, reg.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(errors.Cause(err)) {
			return academic.StudentClassRegistration{}, academic.ErrAlreadyRegistered
		}
		return academic.StudentClassRegistration{}, errors.Wrap(err, "inserting registration")
	}
	return reg, nil
}

func (repo academicRepository) RegistrationExists(ctx context.Context, studentID, classID, sessionYear, term string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM student_class_registration
			WHERE student_id = $1 AND class_id = $2 AND session_year = $3 AND term = $4
		)`, studentID, classID, sessionYear, term)
	return exists, errors.Wrap(err, "checking registration")
}

func (repo academicRepository) QueryRegistrationsByStudent(ctx context.Context, studentID string) ([]academic.StudentClassRegistration, error) {
	type regRow struct {
		ID          string    `db:"id"`
		StudentID   string    `db:"student_id"`
		ClassID     string    `db:"class_id"`
		SessionYear string    `db:"session_year"`
		Term        string    `db:"term"`
		CreatedAt   time.Time `db:"created_at"`
	}

	var rows []regRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, student_id, class_id, session_year, term, created_at
		FROM student_class_registration
		WHERE student_id = $1
		ORDER BY created_at`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}

	regs := make([]academic.StudentClassRegistration, 0, len(rows))
	for _, row := range rows {
		cls, err := repo.GetClassByID(ctx, row.ClassID)
		if err != nil {
			return nil, errors.Wrap(err, "getting registered class")
		}
		regs = append(regs, academic.StudentClassRegistration{
			ID:          row.ID,
			StudentID:   row.StudentID,
			ClassID:     row.ClassID,
			SessionYear: row.SessionYear,
			Term:        row.Term,
			CreatedAt:   row.CreatedAt,
			Class:       cls,
		})
	}
	return regs, nil
}

func (repo academicRepository) AddStudentToClass(ctx context.Context, classID, studentID string) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO class_student (class_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, classID, studentID)
	return errors.Wrap(err, "adding student to class")
}

func (repo academicRepository) IsStudentInClass(ctx context.Context, classID, studentID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM class_student WHERE class_id = $1 AND student_id = $2)`,
		classID, studentID)
	return exists, errors.Wrap(err, "checking class membership")
}

func (repo academicRepository) GetStudentClassAverage(ctx context.Context, studentID, classID string) (float64, error) {
	var avg null.Float64
	err := repo.db.GetContext(ctx, &avg, `
		SELECT AVG(sca.score::float / NULLIF(ca.total_points, 0) * 100)
		FROM student_class_activity sca
		JOIN class_activity ca ON ca.id = sca.activity_id
		WHERE sca.student_id = $1 AND ca.class_id = $2
			AND sca.status IN ('submitted', 'graded', 'late')`,
		studentID, classID)
	if err != nil {
		return 0, errors.Wrap(err, "averaging class scores")
	}
	return avg.Float64, nil
}

func (repo academicRepository) GetStudentGrades(ctx context.Context, studentID string) (map[string]float64, error) {
	var raw null.JSON
	err := repo.db.GetContext(ctx, &raw,
		`SELECT grades FROM academic_progress WHERE student_id = $1`, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting grades")
	}
	if !raw.Valid {
		return nil, nil
	}

	var grades map[string]float64
	if err = json.Unmarshal(raw.JSON, &grades); err != nil {
		return nil, errors.Wrap(err, "decoding grades")
	}
	return grades, nil
}

func (repo academicRepository) CountActiveClassesBySubject(ctx context.Context) (map[string]int, error) {
	type countRow struct {
		Subject string `db:"subject"`
		Count   int    `db:"count"`
	}

	var rows []countRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT subject, COUNT(id) AS count
		FROM class WHERE is_active GROUP BY subject`)
	if err != nil {
		return nil, errors.Wrap(err, "counting classes by subject")
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Subject] = row.Count
	}
	return counts, nil
}

func (repo academicRepository) CreateSubjectModule(ctx context.Context, mod academic.SubjectModule) (academic.SubjectModule, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO subject_module (id, class_id, title, description, "order", created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		mod.ID, mod.ClassID, mod.Title, mod.Description, mod.Order, mod.CreatedAt.UTC())
	if err != nil {
		return academic.SubjectModule{}, errors.Wrap(err, "inserting subject module")
	}
	return mod, nil
}

func (repo academicRepository) QuerySubjectModulesByClass(ctx context.Context, classID string) ([]academic.SubjectModule, error) {
	type moduleRow struct {
		ID          string      `db:"id"`
		ClassID     string      `db:"class_id"`
		Title       string      `db:"title"`
		Description null.String `db:"description"`
		Order       int         `db:"order"`
		CreatedAt   time.Time   `db:"created_at"`
	}

	var rows []moduleRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, class_id, title, description, "order", created_at
		FROM subject_module WHERE class_id = $1 ORDER BY "order"`, classID)
	if err != nil {
		return nil, errors.Wrap(err, "querying subject modules")
	}

	mods := make([]academic.SubjectModule, 0, len(rows))
	for _, row := range rows {
		mods = append(mods, academic.SubjectModule{
			ID:          row.ID,
			ClassID:     row.ClassID,
			Title:       row.Title,
			Description: row.Description.String,
			Order:       row.Order,
			CreatedAt:   row.CreatedAt,
		})
	}
	return mods, nil
}

type sessionRow struct {
	ID          string      `db:"id"`
	ClassID     string      `db:"class_id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	StartTime   time.Time   `db:"start_time"`
	EndTime     time.Time   `db:"end_time"`
	MeetingURL  null.String `db:"meeting_url"`
	Status      string      `db:"status"`
	CreatedBy   string      `db:"created_by"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r sessionRow) toSession() academic.LiveSession {
	return academic.LiveSession{
		ID:          r.ID,
		ClassID:     r.ClassID,
		Title:       r.Title,
		Description: r.Description.String,
		Status:      r.Status,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		MeetingURL:  r.MeetingURL.String,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
	}
}

const sessionColumns = `id, class_id, title, description, start_time, end_time, meeting_url, status, created_by, created_at`

func (repo academicRepository) CreateLiveSession(ctx context.Context, sess academic.LiveSession) (academic.LiveSession, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO live_session (id, class_id, title, description, start_time, end_time, meeting_url, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sess.ID, sess.ClassID, sess.Title, sess.Description, sess.StartTime.UTC(), sess.EndTime.UTC(),
		sess.MeetingURL, sess.Status, sess.CreatedBy, sess.CreatedAt.UTC())
	if err != nil {
		return academic.LiveSession{}, errors.Wrap(err, "inserting live session")
	}
	return sess, nil
}

func (repo academicRepository) GetLiveSession(ctx context.Context, id string) (academic.LiveSession, error) {
	var row sessionRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+sessionColumns+` FROM live_session WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return academic.LiveSession{}, academic.ErrSessionNotFound
		}
		return academic.LiveSession{}, errors.Wrap(err, "getting live session")
	}
	return row.toSession(), nil
}

func (repo academicRepository) QueryUpcomingSessionsByClassIDs(ctx context.Context, classIDs []string, now time.Time) ([]academic.LiveSession, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+sessionColumns+` FROM live_session
		WHERE class_id IN (?) AND end_time > ? AND status <> 'cancelled'
		ORDER BY start_time`, classIDs, now.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "building sessions query")
	}

	var rows []sessionRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying live sessions")
	}

	sessions := make([]academic.LiveSession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toSession())
	}
	return sessions, nil
}

func (repo academicRepository) AddSessionParticipant(ctx context.Context, sessionID, userID string) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO session_participant (session_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, sessionID, userID)
	return errors.Wrap(err, "adding session participant")
}

func (repo academicRepository) RemoveSessionParticipant(ctx context.Context, sessionID, userID string) error {
	_, err := repo.db.ExecContext(ctx,
		`DELETE FROM session_participant WHERE session_id = $1 AND user_id = $2`, sessionID, userID)
	return errors.Wrap(err, "removing session participant")
}

func (repo academicRepository) IsSessionParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM session_participant WHERE session_id = $1 AND user_id = $2)`,
		sessionID, userID)
	return exists, errors.Wrap(err, "checking session participant")
}

func (repo academicRepository) QuerySessionParticipants(ctx context.Context, sessionID string) ([]user.User, error) {
	var rows []userRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT u.`+userColumns+`
		FROM session_participant sp
		JOIN "user" u ON u.id = sp.user_id
		WHERE sp.session_id = $1
		ORDER BY u.first_name, u.last_name`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "querying session participants")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo academicRepository) CreateSessionMessage(ctx context.Context, msg academic.SessionMessage) (academic.SessionMessage, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO session_message (id, session_id, user_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.SessionID, msg.UserID, msg.Content, msg.CreatedAt.UTC())
	if err != nil {
		return academic.SessionMessage{}, errors.Wrap(err, "inserting session message")
	}
	return msg, nil
}

func (repo academicRepository) QuerySessionMessages(ctx context.Context, sessionID string) ([]academic.SessionMessage, error) {
	type messageRow struct {
		ID         string    `db:"id"`
		SessionID  string    `db:"session_id"`
		UserID     string    `db:"user_id"`
		SenderName string    `db:"sender_name"`
		Content    string    `db:"content"`
		CreatedAt  time.Time `db:"created_at"`
	}

	var rows []messageRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT m.id, m.session_id, m.user_id, TRIM(u.first_name || ' ' || u.last_name) AS sender_name,
			m.content, m.created_at
		FROM session_message m
		JOIN "user" u ON u.id = m.user_id
		WHERE m.session_id = $1
		ORDER BY m.created_at`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "querying session messages")
	}

	msgs := make([]academic.SessionMessage, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, academic.SessionMessage(row))
	}
	return msgs, nil
}

func (repo academicRepository) CreateReminder(ctx context.Context, rem academic.Reminder) (academic.Reminder, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO reminder (id, user_id, session_id, title, remind_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rem.ID, rem.UserID, null.NewString(rem.SessionID, rem.SessionID != ""),
		rem.Title, rem.RemindAt.UTC(), rem.CreatedAt.UTC())
	if err != nil {
		return academic.Reminder{}, errors.Wrap(err, "inserting reminder")
	}
	return rem, nil
}

func (repo academicRepository) ReminderExists(ctx context.Context, userID, sessionID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM reminder WHERE user_id = $1 AND session_id = $2)`,
		userID, sessionID)
	return exists, errors.Wrap(err, "checking reminder")
}

type materialRow struct {
	ID          string      `db:"id"`
	ClassID     string      `db:"class_id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	Type        null.String `db:"type"`
	FileURL     null.String `db:"file_url"`
	Views       int         `db:"views"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r materialRow) toMaterial() academic.LearningMaterial {
	return academic.LearningMaterial{
		ID:          r.ID,
		ClassID:     r.ClassID,
		Title:       r.Title,
		Description: r.Description.String,
		Type:        r.Type.String,
		FileURL:     r.FileURL.String,
		Views:       r.Views,
		CreatedAt:   r.CreatedAt,
	}
}

func (repo academicRepository) QueryMaterialsByClass(ctx context.Context, classID string) ([]academic.LearningMaterial, error) {
	var rows []materialRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, class_id, title, description, type, file_url, views, created_at
		FROM learning_material WHERE class_id = $1 ORDER BY created_at DESC`, classID)
	if err != nil {
		return nil, errors.Wrap(err, "querying materials")
	}

	materials := make([]academic.LearningMaterial, 0, len(rows))
	for _, row := range rows {
		materials = append(materials, row.toMaterial())
	}
	return materials, nil
}

func (repo academicRepository) GetLearningMaterial(ctx context.Context, id string) (academic.LearningMaterial, error) {
	var row materialRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, class_id, title, description, type, file_url, views, created_at
		FROM learning_material WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return academic.LearningMaterial{}, academic.ErrMaterialNotFound
		}
		return academic.LearningMaterial{}, errors.Wrap(err, "getting material")
	}
	return row.toMaterial(), nil
}

func (repo academicRepository) IncrementMaterialViews(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE learning_material SET views = views + 1 WHERE id = $1`, id)
	return errors.Wrap(err, "incrementing material views")
}

func (repo academicRepository) QueryLectureNotes(ctx context.Context, materialID string) ([]academic.LectureNote, error) {
	type noteRow struct {
		ID         string    `db:"id"`
		MaterialID string    `db:"material_id"`
		Title      string    `db:"title"`
		Order      int       `db:"order"`
		CreatedAt  time.Time `db:"created_at"`
	}
	type sectionRow struct {
		ID      string `db:"id"`
		NoteID  string `db:"note_id"`
		Heading string `db:"heading"`
		Content string `db:"content"`
		Order   int    `db:"order"`
	}

	var noteRows []noteRow
	err := repo.db.SelectContext(ctx, &noteRows, `
		SELECT id, material_id, title, "order", created_at
		FROM lecture_note WHERE material_id = $1 ORDER BY "order"`, materialID)
	if err != nil {
		return nil, errors.Wrap(err, "querying lecture notes")
	}
	if len(noteRows) == 0 {
		return nil, nil
	}

	noteIDs := make([]string, 0, len(noteRows))
	for _, row := range noteRows {
		noteIDs = append(noteIDs, row.ID)
	}

	query, args, err := sqlx.In(`
		SELECT id, note_id, heading, content, "order"
		FROM lecture_note_section WHERE note_id IN (?) ORDER BY "order"`, noteIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building sections query")
	}

	var sectionRows []sectionRow
	if err = repo.db.SelectContext(ctx, &sectionRows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying note sections")
	}

	sectionsByNote := make(map[string][]academic.LectureNoteSection)
	for _, row := range sectionRows {
		sectionsByNote[row.NoteID] = append(sectionsByNote[row.NoteID], academic.LectureNoteSection(row))
	}

	notes := make([]academic.LectureNote, 0, len(noteRows))
	for _, row := range noteRows {
		notes = append(notes, academic.LectureNote{
			ID:         row.ID,
			MaterialID: row.MaterialID,
			Title:      row.Title,
			Order:      row.Order,
			CreatedAt:  row.CreatedAt,
			Sections:   sectionsByNote[row.ID],
		})
	}
	return notes, nil
}
