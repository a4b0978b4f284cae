package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasahq/darasa/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

type userRow struct {
	ID                 string      `db:"id"`
	Email              null.String `db:"email"`
	FirstName          string      `db:"first_name"`
	LastName           string      `db:"last_name"`
	PhoneNumber        null.String `db:"phone_number"`
	Role               string      `db:"role"`
	StaffID            null.String `db:"staff_id"`
	IsActive           bool        `db:"is_active"`
	MustChangePassword bool        `db:"must_change_password"`
	PasswordHash       []byte      `db:"password_hash"`
	PasswordChangedAt  null.Time   `db:"password_changed_at"`
	LastLoginAt        null.Time   `db:"last_login_at"`
	CreatedAt          time.Time   `db:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"`
}

func newUserRow(usr user.User) userRow {
	return userRow{
		ID:                 usr.ID,
		Email:              null.NewString(usr.Email, usr.Email != ""),
		FirstName:          usr.FirstName,
		LastName:           usr.LastName,
		PhoneNumber:        null.NewString(usr.PhoneNumber, usr.PhoneNumber != ""),
		Role:               usr.Role,
		StaffID:            null.NewString(usr.StaffID, usr.StaffID != ""),
		IsActive:           usr.IsActive,
		MustChangePassword: usr.MustChangePassword,
		PasswordHash:       usr.PasswordHash,
		PasswordChangedAt:  null.NewTime(usr.PasswordChangedAt.UTC(), !usr.PasswordChangedAt.IsZero()),
		LastLoginAt:        null.NewTime(usr.LastLoginAt.UTC(), !usr.LastLoginAt.IsZero()),
		CreatedAt:          usr.CreatedAt.UTC(),
		UpdatedAt:          usr.UpdatedAt.UTC(),
	}
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:                 r.ID,
		Email:              r.Email.String,
		FirstName:          r.FirstName,
		LastName:           r.LastName,
		PhoneNumber:        r.PhoneNumber.String,
		Role:               r.Role,
		StaffID:            r.StaffID.String,
		IsActive:           r.IsActive,
		MustChangePassword: r.MustChangePassword,
		PasswordHash:       r.PasswordHash,
		PasswordChangedAt:  r.PasswordChangedAt.Time,
		LastLoginAt:        r.LastLoginAt.Time,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

const userColumns = `id, email, first_name, last_name, phone_number, role, staff_id, is_active,
	must_change_password, password_hash, password_changed_at, last_login_at, created_at, updated_at`

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := newUserRow(usr)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO "user" (id, email, first_name, last_name, phone_number, role, staff_id, is_active,
			must_change_password, password_hash, password_changed_at, last_login_at, created_at, updated_at)
		VALUES (:id, :email, :first_name, :last_name, :phone_number, :role, :staff_id, :is_active,
			:must_change_password, :password_hash, :password_changed_at, :last_login_at, :created_at, :updated_at)`,
		row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) getUser(ctx context.Context, query string, args ...interface{}) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userColumns+` FROM "user" WHERE id = $1`, id)
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userColumns+` FROM "user" WHERE email = $1`, email)
}

func (repo userRepository) GetUserByStaffID(ctx context.Context, staffID string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userColumns+` FROM "user" WHERE staff_id = $1`, staffID)
}

func (repo userRepository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]user.User, error) {
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	return repo.queryUsers(ctx, `SELECT `+userColumns+` FROM "user" ORDER BY created_at`)
}

func (repo userRepository) QueryUsersByRole(ctx context.Context, role string) ([]user.User, error) {
	return repo.queryUsers(ctx, `SELECT `+userColumns+` FROM "user" WHERE role = $1 ORDER BY created_at`, role)
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := newUserRow(usr)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE "user"
		SET email = :email, first_name = :first_name, last_name = :last_name, phone_number = :phone_number,
			role = :role, staff_id = :staff_id, is_active = :is_active,
			must_change_password = :must_change_password, password_hash = :password_hash,
			password_changed_at = :password_changed_at, last_login_at = :last_login_at, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

type studentRow struct {
	ID           string      `db:"id"`
	UserID       string      `db:"user_id"`
	StudentID    null.String `db:"student_id"`
	MatricNumber null.String `db:"matric_number"`
	FullName     string      `db:"full_name"`
	Grade        null.String `db:"grade"`
	School       null.String `db:"school"`
	Gender       null.String `db:"gender"`
	ParentID     null.String `db:"parent_id"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func newStudentRow(st user.Student) studentRow {
	return studentRow{
		ID:           st.ID,
		UserID:       st.UserID,
		StudentID:    null.NewString(st.StudentID, st.StudentID != ""),
		MatricNumber: null.NewString(st.MatricNumber, st.MatricNumber != ""),
		FullName:     st.FullName,
		Grade:        null.NewString(st.Grade, st.Grade != ""),
		School:       null.NewString(st.School, st.School != ""),
		Gender:       null.NewString(st.Gender, st.Gender != ""),
		ParentID:     null.NewString(st.ParentID, st.ParentID != ""),
		CreatedAt:    st.CreatedAt.UTC(),
		UpdatedAt:    st.UpdatedAt.UTC(),
	}
}

func (r studentRow) toStudent() user.Student {
	return user.Student{
		ID:           r.ID,
		UserID:       r.UserID,
		StudentID:    r.StudentID.String,
		MatricNumber: r.MatricNumber.String,
		FullName:     r.FullName,
		Grade:        r.Grade.String,
		School:       r.School.String,
		Gender:       r.Gender.String,
		ParentID:     r.ParentID.String,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

const studentColumns = `id, user_id, student_id, matric_number, full_name, grade, school, gender,
	parent_id, created_at, updated_at`

func (repo userRepository) CreateStudent(ctx context.Context, st user.Student) (user.Student, error) {
	row := newStudentRow(st)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO student (id, user_id, student_id, matric_number, full_name, grade, school, gender,
			parent_id, created_at, updated_at)
		VALUES (:id, :user_id, :student_id, :matric_number, :full_name, :grade, :school, :gender,
			:parent_id, :created_at, :updated_at)`,
		row)
	if err != nil {
		return user.Student{}, errors.Wrap(err, "inserting student")
	}
	return st, nil
}

func (repo userRepository) getStudent(ctx context.Context, query string, args ...interface{}) (user.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.Student{}, user.ErrStudentNotFound
		}
		return user.Student{}, errors.Wrap(err, "getting student")
	}

	st := row.toStudent()
	usr, err := repo.GetUserByID(ctx, st.UserID)
	if err != nil {
		return user.Student{}, errors.Wrap(err, "getting student's user")
	}
	st.User = usr
	return st, nil
}

func (repo userRepository) GetStudentByUserID(ctx context.Context, userID string) (user.Student, error) {
	return repo.getStudent(ctx, `SELECT `+studentColumns+` FROM student WHERE user_id = $1`, userID)
}

func (repo userRepository) GetStudentByStudentID(ctx context.Context, studentID string) (user.Student, error) {
	return repo.getStudent(ctx, `SELECT `+studentColumns+` FROM student WHERE student_id = $1`, studentID)
}

func (repo userRepository) GetStudentByMatricNumber(ctx context.Context, matricNumber string) (user.Student, error) {
	return repo.getStudent(ctx, `SELECT `+studentColumns+` FROM student WHERE matric_number = $1`, matricNumber)
}

func (repo userRepository) QueryStudentsByParentID(ctx context.Context, parentID string) ([]user.Student, error) {
	var rows []studentRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+studentColumns+` FROM student WHERE parent_id = $1 ORDER BY created_at`, parentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying students by parent")
	}

	students := make([]user.Student, 0, len(rows))
	for _, row := range rows {
		st := row.toStudent()
		usr, err := repo.GetUserByID(ctx, st.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "getting student's user")
		}
		st.User = usr
		students = append(students, st)
	}
	return students, nil
}

type tokenRepository struct {
	db *sqlx.DB
}

var _ user.TokenRepository = (*tokenRepository)(nil) // interface compliance check

func NewTokenRepository(db *sqlx.DB) *tokenRepository {
	return &tokenRepository{db: db}
}

func (repo tokenRepository) BlacklistToken(ctx context.Context, tok user.BlacklistedToken) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO blacklisted_token (id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO NOTHING`,
		tok.ID, tok.Token, tok.ExpiresAt.UTC(), tok.CreatedAt.UTC())
	return errors.Wrap(err, "blacklisting token")
}

func (repo tokenRepository) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM blacklisted_token WHERE token = $1)`, token)
	return exists, errors.Wrap(err, "checking token blacklist")
}

func (repo tokenRepository) DeleteExpiredBlacklistedTokens(ctx context.Context, now time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx,
		`DELETE FROM blacklisted_token WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "pruning blacklisted tokens")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "pruning blacklisted tokens")
}

type resetTokenRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
	IsUsed    bool      `db:"is_used"`
	CreatedAt time.Time `db:"created_at"`
}

func (repo tokenRepository) CreatePasswordResetToken(ctx context.Context, tok user.PasswordResetToken) (user.PasswordResetToken, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO password_reset_token (id, user_id, token, expires_at, is_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tok.ID, tok.UserID, tok.Token, tok.ExpiresAt.UTC(), tok.IsUsed, tok.CreatedAt.UTC())
	if err != nil {
		return user.PasswordResetToken{}, errors.Wrap(err, "inserting reset token")
	}
	return tok, nil
}

func (repo tokenRepository) GetPasswordResetToken(ctx context.Context, token string) (user.PasswordResetToken, error) {
	var row resetTokenRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, user_id, token, expires_at, is_used, created_at
		FROM password_reset_token WHERE token = $1`, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.PasswordResetToken{}, user.ErrNotFound
		}
		return user.PasswordResetToken{}, errors.Wrap(err, "getting reset token")
	}
	return user.PasswordResetToken(row), nil
}

func (repo tokenRepository) UpdatePasswordResetToken(ctx context.Context, tok user.PasswordResetToken) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE password_reset_token SET is_used = $1 WHERE id = $2`, tok.IsUsed, tok.ID)
	return errors.Wrap(err, "updating reset token")
}
