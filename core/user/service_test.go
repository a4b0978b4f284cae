package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
)

// fakeRepo is a map-backed Repository for exercising the service without
// a database.
type fakeRepo struct {
	users    map[string]User
	students map[string]Student
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[string]User),
		students: make(map[string]Student),
	}
}

func (r *fakeRepo) CreateUser(_ context.Context, usr User) (User, error) {
	r.users[usr.ID] = usr
	return usr, nil
}

func (r *fakeRepo) GetUserByID(_ context.Context, id string) (User, error) {
	if usr, ok := r.users[id]; ok {
		return usr, nil
	}
	return User{}, ErrNotFound
}

func (r *fakeRepo) GetUserByEmail(_ context.Context, email string) (User, error) {
	for _, usr := range r.users {
		if usr.Email == email {
			return usr, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *fakeRepo) GetUserByStaffID(_ context.Context, staffID string) (User, error) {
	for _, usr := range r.users {
		if usr.StaffID != "" && usr.StaffID == staffID {
			return usr, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *fakeRepo) QueryAllUsers(_ context.Context) ([]User, error) {
	all := make([]User, 0, len(r.users))
	for _, usr := range r.users {
		all = append(all, usr)
	}
	return all, nil
}

func (r *fakeRepo) QueryUsersByRole(_ context.Context, role string) ([]User, error) {
	var matched []User
	for _, usr := range r.users {
		if usr.Role == role {
			matched = append(matched, usr)
		}
	}
	return matched, nil
}

func (r *fakeRepo) UpdateUser(_ context.Context, usr User) (User, error) {
	if _, ok := r.users[usr.ID]; !ok {
		return User{}, ErrNotFound
	}
	r.users[usr.ID] = usr
	return usr, nil
}

func (r *fakeRepo) CreateStudent(_ context.Context, st Student) (Student, error) {
	r.students[st.ID] = st
	return st, nil
}

func (r *fakeRepo) GetStudentByUserID(_ context.Context, userID string) (Student, error) {
	for _, st := range r.students {
		if st.UserID == userID {
			return r.withUser(st), nil
		}
	}
	return Student{}, ErrStudentNotFound
}

func (r *fakeRepo) GetStudentByStudentID(_ context.Context, studentID string) (Student, error) {
	for _, st := range r.students {
		if st.StudentID != "" && st.StudentID == studentID {
			return r.withUser(st), nil
		}
	}
	return Student{}, ErrStudentNotFound
}

func (r *fakeRepo) GetStudentByMatricNumber(_ context.Context, matricNumber string) (Student, error) {
	for _, st := range r.students {
		if st.MatricNumber != "" && st.MatricNumber == matricNumber {
			return r.withUser(st), nil
		}
	}
	return Student{}, ErrStudentNotFound
}

func (r *fakeRepo) QueryStudentsByParentID(_ context.Context, parentID string) ([]Student, error) {
	var children []Student
	for _, st := range r.students {
		if st.ParentID != "" && st.ParentID == parentID {
			children = append(children, r.withUser(st))
		}
	}
	return children, nil
}

func (r *fakeRepo) withUser(st Student) Student {
	st.User = r.users[st.UserID]
	return st
}

// fakeTokenRepo is a map-backed TokenRepository.
type fakeTokenRepo struct {
	blacklist   map[string]BlacklistedToken
	resetTokens map[string]PasswordResetToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{
		blacklist:   make(map[string]BlacklistedToken),
		resetTokens: make(map[string]PasswordResetToken),
	}
}

func (r *fakeTokenRepo) BlacklistToken(_ context.Context, tok BlacklistedToken) error {
	r.blacklist[tok.Token] = tok
	return nil
}

func (r *fakeTokenRepo) IsTokenBlacklisted(_ context.Context, token string) (bool, error) {
	_, ok := r.blacklist[token]
	return ok, nil
}

func (r *fakeTokenRepo) DeleteExpiredBlacklistedTokens(_ context.Context, now time.Time) (int, error) {
	var n int
	for token, tok := range r.blacklist {
		if tok.ExpiresAt.Before(now) {
			delete(r.blacklist, token)
			n++
		}
	}
	return n, nil
}

func (r *fakeTokenRepo) CreatePasswordResetToken(_ context.Context, tok PasswordResetToken) (PasswordResetToken, error) {
	r.resetTokens[tok.Token] = tok
	return tok, nil
}

func (r *fakeTokenRepo) GetPasswordResetToken(_ context.Context, token string) (PasswordResetToken, error) {
	if tok, ok := r.resetTokens[token]; ok {
		return tok, nil
	}
	return PasswordResetToken{}, ErrNotFound
}

func (r *fakeTokenRepo) UpdatePasswordResetToken(_ context.Context, tok PasswordResetToken) error {
	r.resetTokens[tok.Token] = tok
	return nil
}

// mailRecorder records messages instead of sending them.
type mailRecorder struct {
	sent []*core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.sent = append(m.sent, messages...)
}

type svcEnv struct {
	repo    *fakeRepo
	tokRepo *fakeTokenRepo
	mail    *mailRecorder
	svc     *Service
}

func newSvcEnv() *svcEnv {
	repo := newFakeRepo()
	tokRepo := newFakeTokenRepo()
	mail := &mailRecorder{}
	return &svcEnv{
		repo:    repo,
		tokRepo: tokRepo,
		mail:    mail,
		svc:     NewService(repo, tokRepo, mail),
	}
}

func (env *svcEnv) addUser(t *testing.T, email, role, pwd string, active bool) User {
	t.Helper()
	now := time.Now().UTC()
	usr := User{
		ID:        uuid.New().String(),
		Email:     email,
		FirstName: "Awe",
		LastName:  "Some",
		Role:      role,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("SetPassword() failed, %v", err)
		}
	}
	env.repo.users[usr.ID] = usr
	return usr
}

func (env *svcEnv) addStudent(t *testing.T, usr User, st Student) Student {
	t.Helper()
	st.ID = uuid.New().String()
	st.UserID = usr.ID
	if st.FullName == "" {
		st.FullName = usr.Name()
	}
	env.repo.students[st.ID] = st
	st.User = usr
	return st
}

func Test_Service_Authenticate(t *testing.T) {
	env := newSvcEnv()
	ctx := context.Background()

	secUsr := env.addUser(t, "sec@test.cd", RoleSecondaryStudent, "S3c#pwd!!", true)
	env.addStudent(t, secUsr, Student{StudentID: "STU-001", FullName: "Awe Some", Grade: "SS2"})

	uniUsr := env.addUser(t, "uni@test.cd", RoleUniversityStudent, "Un1#pwd!!", true)
	env.addStudent(t, uniUsr, Student{MatricNumber: "MAT/21/007"})

	parent := env.addUser(t, "parent@test.cd", RoleParent, "Par3nt#pwd!", true)
	child := env.addUser(t, "child@test.cd", RoleSecondaryStudent, "", true)
	env.addStudent(t, child, Student{StudentID: "STU-002", ParentID: parent.ID})

	teacher := env.addUser(t, "teacher@test.cd", RoleTeacher, "T3ach#pwd!", true)
	teacher.StaffID = "TCH-9"
	env.repo.users[teacher.ID] = teacher

	admin := env.addUser(t, "admin@test.cd", RoleAdmin, "Adm1n#pwd!", true)

	frozen := env.addUser(t, "frozen@test.cd", RoleUniversityStudent, "Fr0zen#pwd!", false)
	env.addStudent(t, frozen, Student{MatricNumber: "MAT/21/013"})

	tests := []struct {
		name    string
		login   func() (User, error)
		wantID  string
		wantErr error
	}{
		{
			name:   "secondary student ok",
			login:  func() (User, error) { return env.svc.AuthenticateSecondaryStudent(ctx, "STU-001", "Awe Some", "S3c#pwd!!") },
			wantID: secUsr.ID,
		},
		{
			name:   "secondary student full name is case-insensitive",
			login:  func() (User, error) { return env.svc.AuthenticateSecondaryStudent(ctx, "STU-001", "aWe sOme", "S3c#pwd!!") },
			wantID: secUsr.ID,
		},
		{
			name:    "secondary student wrong full name",
			login:   func() (User, error) { return env.svc.AuthenticateSecondaryStudent(ctx, "STU-001", "Someone Else", "S3c#pwd!!") },
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "secondary student unknown studentID",
			login:   func() (User, error) { return env.svc.AuthenticateSecondaryStudent(ctx, "STU-404", "Awe Some", "S3c#pwd!!") },
			wantErr: ErrInvalidCredentials,
		},
		{
			name:   "university student ok",
			login:  func() (User, error) { return env.svc.AuthenticateUniversityStudent(ctx, "MAT/21/007", "Un1#pwd!!") },
			wantID: uniUsr.ID,
		},
		{
			name:    "university student wrong password",
			login:   func() (User, error) { return env.svc.AuthenticateUniversityStudent(ctx, "MAT/21/007", "nope") },
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "deactivated account",
			login:   func() (User, error) { return env.svc.AuthenticateUniversityStudent(ctx, "MAT/21/013", "Fr0zen#pwd!") },
			wantErr: ErrAccountDeactivated,
		},
		{
			name:   "parent ok",
			login:  func() (User, error) { return env.svc.AuthenticateParent(ctx, "parent@test.cd", "STU-002", "Par3nt#pwd!") },
			wantID: parent.ID,
		},
		{
			name:    "parent with someone else's child",
			login:   func() (User, error) { return env.svc.AuthenticateParent(ctx, "parent@test.cd", "STU-001", "Par3nt#pwd!") },
			wantErr: ErrInvalidCredentials,
		},
		{
			name:   "teacher ok",
			login:  func() (User, error) { return env.svc.AuthenticateTeacher(ctx, "TCH-9", "T3ach#pwd!") },
			wantID: teacher.ID,
		},
		{
			name:    "teacher unknown staffID",
			login:   func() (User, error) { return env.svc.AuthenticateTeacher(ctx, "TCH-404", "T3ach#pwd!") },
			wantErr: ErrInvalidCredentials,
		},
		{
			name:   "admin ok",
			login:  func() (User, error) { return env.svc.AuthenticateAdmin(ctx, "admin@test.cd", "Adm1n#pwd!") },
			wantID: admin.ID,
		},
		{
			name:    "admin login with a teacher account",
			login:   func() (User, error) { return env.svc.AuthenticateAdmin(ctx, "teacher@test.cd", "T3ach#pwd!") },
			wantErr: ErrInvalidCredentials,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := tt.login()
			if tt.wantErr != nil {
				if errors.Cause(err) != tt.wantErr {
					t.Errorf("login error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("login failed, %v", err)
			}
			if usr.ID != tt.wantID {
				t.Errorf("usr.ID = %s, want %s", usr.ID, tt.wantID)
			}
			if usr.LastLoginAt.IsZero() {
				t.Error("usr.LastLoginAt was not set")
			}
		})
	}
}

func Test_Service_ChangePassword(t *testing.T) {
	env := newSvcEnv()
	ctx := context.Background()

	t.Run("temporary password must change", func(t *testing.T) {
		usr := env.addUser(t, "temp@test.cd", RoleTeacher, "T3mp#pwd!", true)
		usr.MustChangePassword = true
		env.repo.users[usr.ID] = usr

		// reusing the temporary password is rejected
		_, err := env.svc.ChangePassword(ctx, usr, ChangePassword{NewPassword: "T3mp#pwd!", ConfirmNewPassword: "T3mp#pwd!"})
		if _, ok := err.(*core.ValidationError); !ok {
			t.Fatalf("ChangePassword() error = %v, want *core.ValidationError", err)
		}

		// no current password required
		updated, err := env.svc.ChangePassword(ctx, usr, ChangePassword{NewPassword: "N3w!Str0ng#pwd", ConfirmNewPassword: "N3w!Str0ng#pwd"})
		if err != nil {
			t.Fatalf("ChangePassword() failed, %v", err)
		}
		if updated.MustChangePassword {
			t.Error("updated.MustChangePassword = true, want false")
		}
		if updated.PasswordChangedAt.IsZero() {
			t.Error("updated.PasswordChangedAt was not set")
		}
		if err := updated.CheckPassword("N3w!Str0ng#pwd"); err != nil {
			t.Errorf("CheckPassword() failed, %v", err)
		}
	})

	t.Run("established password requires the current one", func(t *testing.T) {
		usr := env.addUser(t, "est@test.cd", RoleTeacher, "Curr3nt#pwd!", true)

		_, err := env.svc.ChangePassword(ctx, usr, ChangePassword{NewPassword: "N3w!Str0ng#pwd", ConfirmNewPassword: "N3w!Str0ng#pwd"})
		if _, ok := err.(*core.ValidationError); !ok {
			t.Fatalf("ChangePassword() error = %v, want *core.ValidationError", err)
		}

		_, err = env.svc.ChangePassword(ctx, usr, ChangePassword{CurrentPassword: "wrong", NewPassword: "N3w!Str0ng#pwd", ConfirmNewPassword: "N3w!Str0ng#pwd"})
		if _, ok := err.(*core.ValidationError); !ok {
			t.Fatalf("ChangePassword() error = %v, want *core.ValidationError", err)
		}

		_, err = env.svc.ChangePassword(ctx, usr, ChangePassword{CurrentPassword: "Curr3nt#pwd!", NewPassword: "Curr3nt#pwd!", ConfirmNewPassword: "Curr3nt#pwd!"})
		if _, ok := err.(*core.ValidationError); !ok {
			t.Fatalf("ChangePassword() error = %v, want *core.ValidationError", err)
		}

		_, err = env.svc.ChangePassword(ctx, usr, ChangePassword{CurrentPassword: "Curr3nt#pwd!", NewPassword: "weak", ConfirmNewPassword: "weak"})
		if _, ok := err.(*core.ValidationError); !ok {
			t.Fatalf("ChangePassword() error = %v, want *core.ValidationError", err)
		}

		if _, err = env.svc.ChangePassword(ctx, usr, ChangePassword{CurrentPassword: "Curr3nt#pwd!", NewPassword: "N3w!Str0ng#pwd", ConfirmNewPassword: "N3w!Str0ng#pwd"}); err != nil {
			t.Fatalf("ChangePassword() failed, %v", err)
		}
	})
}

func Test_Service_PasswordReset(t *testing.T) {
	env := newSvcEnv()
	ctx := context.Background()

	usr := env.addUser(t, "forgot@test.cd", RoleParent, "Old#pwd!1", true)
	inactive := env.addUser(t, "gone@test.cd", RoleParent, "Old#pwd!1", false)

	if err := env.svc.RequestPasswordReset(ctx, inactive.Email); errors.Cause(err) != ErrNotFound {
		t.Errorf("RequestPasswordReset() error = %v, wantErr %v", err, ErrNotFound)
	}

	if err := env.svc.RequestPasswordReset(ctx, usr.Email); err != nil {
		t.Fatalf("RequestPasswordReset() failed, %v", err)
	}
	if len(env.mail.sent) != 1 {
		t.Fatalf("len(sent) = %d, want 1", len(env.mail.sent))
	}
	msg := env.mail.sent[0]
	if msg.TemplateName != "password-reset" {
		t.Errorf("msg.TemplateName = %s, want password-reset", msg.TemplateName)
	}
	if len(msg.To) != 1 || msg.To[0].Address != usr.Email {
		t.Errorf("msg.To = %v, want %s", msg.To, usr.Email)
	}

	var token string
	for tok := range env.tokRepo.resetTokens {
		token = tok
	}
	if token == "" {
		t.Fatal("no reset token was stored")
	}

	checkRejected := func(t *testing.T, rp ResetPassword) {
		t.Helper()
		err := env.svc.ResetPassword(ctx, rp)
		vErr, ok := err.(*core.ValidationError)
		if !ok {
			t.Fatalf("ResetPassword() error = %v, want *core.ValidationError", err)
		}
		if vErr.Err != ErrInvalidResetToken {
			t.Errorf("vErr.Err = %v, want %v", vErr.Err, ErrInvalidResetToken)
		}
	}

	t.Run("unknown token", func(t *testing.T) {
		checkRejected(t, ResetPassword{Token: "nope", NewPassword: "N3w!Str0ng#pwd", ConfirmNewPassword: "N3w!Str0ng#pwd"})
	})

	t.Run("expired token", func(t *testing.T) {
		NowFunc = func() time.Time { return time.Now().Add(core.Conf.PasswordResetTimeoutDelta + time.Hour) }
		defer func() { NowFunc = time.Now }()
		checkRejected(t, ResetPassword{Token: token, NewPassword: "N3w!Str0ng#pwd", ConfirmNewPassword: "N3w!Str0ng#pwd"})
	})

	t.Run("valid token", func(t *testing.T) {
		rp := ResetPassword{Token: token, NewPassword: "N3w!Str0ng#pwd", ConfirmNewPassword: "N3w!Str0ng#pwd"}
		if err := env.svc.ResetPassword(ctx, rp); err != nil {
			t.Fatalf("ResetPassword() failed, %v", err)
		}
		refreshed := env.repo.users[usr.ID]
		if err := refreshed.CheckPassword("N3w!Str0ng#pwd"); err != nil {
			t.Errorf("CheckPassword() failed, %v", err)
		}
		if refreshed.PasswordChangedAt.IsZero() {
			t.Error("refreshed.PasswordChangedAt was not set")
		}

		// single use
		checkRejected(t, rp)
	})
}

func Test_Service_TokenRevocation(t *testing.T) {
	env := newSvcEnv()
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour)

	already, err := env.svc.RevokeToken(ctx, "jwt-1", expiry)
	if err != nil || already {
		t.Fatalf("RevokeToken() = (%v, %v), want (false, nil)", already, err)
	}
	if revoked, _ := env.svc.IsTokenRevoked(ctx, "jwt-1"); !revoked {
		t.Error("IsTokenRevoked() = false, want true")
	}

	already, err = env.svc.RevokeToken(ctx, "jwt-1", expiry)
	if err != nil || !already {
		t.Fatalf("RevokeToken() = (%v, %v), want (true, nil)", already, err)
	}

	if _, err := env.svc.RevokeToken(ctx, "jwt-expired", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("RevokeToken() failed, %v", err)
	}
	n, err := env.svc.PruneExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("PruneExpiredTokens() failed, %v", err)
	}
	if n != 1 {
		t.Errorf("PruneExpiredTokens() = %d, want 1", n)
	}
	if revoked, _ := env.svc.IsTokenRevoked(ctx, "jwt-1"); !revoked {
		t.Error("the live token must survive pruning")
	}
}
