package user

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound           = core.NewNotFoundError("user not found")
	ErrStudentNotFound    = core.NewNotFoundError("student not found")
	ErrInvalidCredentials = core.NewUnauthorizedError("invalid credentials")
	ErrAccountDeactivated = core.NewForbiddenError("account deactivated")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByStaffID(ctx context.Context, staffID string) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		QueryUsersByRole(ctx context.Context, role string) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)

		CreateStudent(ctx context.Context, st Student) (Student, error)
		GetStudentByUserID(ctx context.Context, userID string) (Student, error)
		GetStudentByStudentID(ctx context.Context, studentID string) (Student, error)
		GetStudentByMatricNumber(ctx context.Context, matricNumber string) (Student, error)
		QueryStudentsByParentID(ctx context.Context, parentID string) ([]Student, error)
	}

	// TokenRepository persists revoked JWTs and password reset tokens.
	TokenRepository interface {
		BlacklistToken(ctx context.Context, tok BlacklistedToken) error
		IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
		DeleteExpiredBlacklistedTokens(ctx context.Context, now time.Time) (int, error)

		CreatePasswordResetToken(ctx context.Context, tok PasswordResetToken) (PasswordResetToken, error)
		GetPasswordResetToken(ctx context.Context, token string) (PasswordResetToken, error)
		UpdatePasswordResetToken(ctx context.Context, tok PasswordResetToken) error
	}

	Service struct {
		repo      Repository
		tokenRepo TokenRepository
		mailSvc   core.EmailService
	}
)

func NewService(repo Repository, tokenRepo TokenRepository, mailSvc core.EmailService) *Service {
	return &Service{
		repo:      repo,
		tokenRepo: tokenRepo,
		mailSvc:   mailSvc,
	}
}

func (svc *Service) checkEmailUniqueness(email string) error {
	if _, err := svc.repo.GetUserByEmail(context.Background(), email); err == nil {
		return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	} else if errors.Cause(err) != ErrNotFound {
		return err
	}
	return nil
}

// checkCredentials applies the checks shared by all login flows.
func (svc *Service) checkCredentials(usr User, pwd string) error {
	if err := usr.CheckPassword(pwd); err != nil {
		return ErrInvalidCredentials
	}
	if !usr.IsActive {
		return ErrAccountDeactivated
	}
	return nil
}

func (svc *Service) setLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLoginAt = NowFunc().UTC()
	usr.UpdatedAt = usr.LastLoginAt
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

// AuthenticateSecondaryStudent logs a secondary school student in with their
// student number, full name (case-insensitive) and password.
func (svc *Service) AuthenticateSecondaryStudent(ctx context.Context, studentID, fullName, pwd string) (User, error) {
	st, err := svc.repo.GetStudentByStudentID(ctx, core.CleanString(studentID))
	if err != nil {
		if core.IsNotFound(errors.Cause(err)) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding student by studentID")
	}
	if !strings.EqualFold(core.CleanString(fullName), st.FullName) {
		return User{}, ErrInvalidCredentials
	}
	if err := svc.checkCredentials(st.User, pwd); err != nil {
		return User{}, err
	}
	return svc.setLastLogin(ctx, st.User)
}

// AuthenticateUniversityStudent logs a university student in with their
// matriculation number and password.
func (svc *Service) AuthenticateUniversityStudent(ctx context.Context, matricNumber, pwd string) (User, error) {
	st, err := svc.repo.GetStudentByMatricNumber(ctx, core.CleanString(matricNumber))
	if err != nil {
		if core.IsNotFound(errors.Cause(err)) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding student by matricNumber")
	}
	if err := svc.checkCredentials(st.User, pwd); err != nil {
		return User{}, err
	}
	return svc.setLastLogin(ctx, st.User)
}

// AuthenticateParent logs a parent in with their email, one of their
// children's student number and their password.
func (svc *Service) AuthenticateParent(ctx context.Context, email, childStudentID, pwd string) (User, error) {
	usr, err := svc.getActiveParent(ctx, email)
	if err != nil {
		return User{}, err
	}
	children, err := svc.repo.QueryStudentsByParentID(ctx, usr.ID)
	if err != nil {
		return User{}, errors.Wrap(err, "querying children")
	}
	childStudentID = core.CleanString(childStudentID)
	var isTheirChild bool
	for _, child := range children {
		if child.StudentID == childStudentID {
			isTheirChild = true
			break
		}
	}
	if !isTheirChild {
		return User{}, ErrInvalidCredentials
	}
	if err := svc.checkCredentials(usr, pwd); err != nil {
		return User{}, err
	}
	return svc.setLastLogin(ctx, usr)
}

func (svc *Service) getActiveParent(ctx context.Context, email string) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if core.IsNotFound(errors.Cause(err)) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if !usr.IsParent() {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

// AuthenticateTeacher logs a teacher in with their staff ID and password.
func (svc *Service) AuthenticateTeacher(ctx context.Context, staffID, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByStaffID(ctx, core.CleanString(staffID))
	if err != nil {
		if core.IsNotFound(errors.Cause(err)) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by staffID")
	}
	if !usr.IsTeacher() {
		return User{}, ErrInvalidCredentials
	}
	if err := svc.checkCredentials(usr, pwd); err != nil {
		return User{}, err
	}
	return svc.setLastLogin(ctx, usr)
}

// AuthenticateAdmin logs an administrator in with their email and password.
func (svc *Service) AuthenticateAdmin(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if core.IsNotFound(errors.Cause(err)) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if !usr.IsAdmin() {
		return User{}, ErrInvalidCredentials
	}
	if err := svc.checkCredentials(usr, pwd); err != nil {
		return User{}, err
	}
	return svc.setLastLogin(ctx, usr)
}

// Create registers a new User with a temporary password; they must change
// it on first login.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := NowFunc().UTC()
	usr := User{
		ID:                 uuid.New().String(),
		Email:              nu.Email,
		FirstName:          nu.FirstName,
		LastName:           nu.LastName,
		PhoneNumber:        nu.PhoneNumber,
		Role:               nu.Role,
		StaffID:            nu.StaffID,
		IsActive:           true,
		MustChangePassword: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *Service) QueryByRole(ctx context.Context, role string) ([]User, error) {
	return svc.repo.QueryUsersByRole(ctx, role)
}

func (svc *Service) SetActive(ctx context.Context, id string, active bool) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.IsActive = active
	usr.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) GetStudentByUserID(ctx context.Context, userID string) (Student, error) {
	return svc.repo.GetStudentByUserID(ctx, userID)
}

func (svc *Service) CreateStudent(ctx context.Context, st Student) (Student, error) {
	now := NowFunc().UTC()
	st.ID = uuid.New().String()
	st.CreatedAt = now
	st.UpdatedAt = now
	return svc.repo.CreateStudent(ctx, st)
}

func (svc *Service) QueryChildren(ctx context.Context, parentID string) ([]Student, error) {
	return svc.repo.QueryStudentsByParentID(ctx, parentID)
}

// ChangePassword rotates usr's password. Accounts still on a temporary
// password only provide the new password, which must differ from the
// temporary one; established accounts must also supply their current
// password. Every change invalidates previously issued tokens.
func (svc *Service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error) {
	if usr.MustChangePassword {
		if usr.CheckPassword(cp.NewPassword) == nil {
			return User{}, core.NewValidationError(
				nil, core.FieldError{Field: "new_password", Error: "new password must be different from the temporary password"})
		}
	} else {
		if cp.CurrentPassword == "" {
			return User{}, core.NewValidationError(
				nil, core.FieldError{Field: "current_password", Error: "this field is required"})
		}
		if usr.CheckPassword(cp.CurrentPassword) != nil {
			return User{}, core.NewValidationError(
				nil, core.FieldError{Field: "current_password", Error: "current password is incorrect"})
		}
		if usr.CheckPassword(cp.NewPassword) == nil {
			return User{}, core.NewValidationError(
				nil, core.FieldError{Field: "new_password", Error: "new password must be different from the current password"})
		}
	}

	if err := CheckPasswordStrength(cp.NewPassword, usr.Name(), usr.Email); err != nil {
		return User{}, err
	}
	if err := usr.SetPassword(cp.NewPassword); err != nil {
		return User{}, err
	}
	now := NowFunc().UTC()
	usr.MustChangePassword = false
	usr.PasswordChangedAt = now
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr)
}

// RequestPasswordReset mails usr a single-use reset link.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return errors.Wrap(err, "generating reset token")
	}
	now := NowFunc().UTC()
	tok := PasswordResetToken{
		ID:        uuid.New().String(),
		UserID:    usr.ID,
		Token:     hex.EncodeToString(raw),
		ExpiresAt: now.Add(core.Conf.PasswordResetTimeoutDelta),
		CreatedAt: now,
	}
	if tok, err = svc.tokenRepo.CreatePasswordResetToken(ctx, tok); err != nil {
		return errors.Wrap(err, "saving reset token")
	}

	svc.sendPasswordResetMail(usr, tok)
	return nil
}

func (svc *Service) sendPasswordResetMail(usr User, tok PasswordResetToken) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name(), Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Name     string
			ResetURL string
		}{
			Name:     usr.Name(),
			ResetURL: fmt.Sprintf("%s/reset-password?token=%s", core.Conf.FrontendBaseURL, tok.Token),
		},
	})
}

// ResetPassword consumes a reset token and sets the new password.
// Unknown, used and expired tokens are rejected alike.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetPassword) error {
	tok, err := svc.tokenRepo.GetPasswordResetToken(ctx, rp.Token)
	if err != nil {
		if core.IsNotFound(errors.Cause(err)) {
			return core.NewValidationError(ErrInvalidResetToken)
		}
		return errors.Wrap(err, "finding reset token")
	}
	now := NowFunc().UTC()
	if !tok.IsValidAt(now) {
		return core.NewValidationError(ErrInvalidResetToken)
	}

	usr, err := svc.repo.GetUserByID(ctx, tok.UserID)
	if err != nil {
		return errors.Wrap(err, "finding token user")
	}
	if err := CheckPasswordStrength(rp.NewPassword, usr.Name(), usr.Email); err != nil {
		return err
	}
	if err := usr.SetPassword(rp.NewPassword); err != nil {
		return err
	}
	usr.MustChangePassword = false
	usr.PasswordChangedAt = now
	usr.UpdatedAt = now
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}

	tok.IsUsed = true
	return errors.Wrap(svc.tokenRepo.UpdatePasswordResetToken(ctx, tok), "consuming reset token")
}

// RevokeToken blacklists a JWT until its natural expiry. Revoking an
// already revoked token reports alreadyRevoked instead of failing.
func (svc *Service) RevokeToken(ctx context.Context, token string, expiresAt time.Time) (alreadyRevoked bool, err error) {
	revoked, err := svc.tokenRepo.IsTokenBlacklisted(ctx, token)
	if err != nil {
		return false, errors.Wrap(err, "checking blacklist")
	}
	if revoked {
		return true, nil
	}
	now := NowFunc().UTC()
	tok := BlacklistedToken{
		ID:        uuid.New().String(),
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
	}
	return false, errors.Wrap(svc.tokenRepo.BlacklistToken(ctx, tok), "blacklisting token")
}

func (svc *Service) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	return svc.tokenRepo.IsTokenBlacklisted(ctx, token)
}

// PruneExpiredTokens drops blacklist entries past their natural expiry.
func (svc *Service) PruneExpiredTokens(ctx context.Context) (int, error) {
	return svc.tokenRepo.DeleteExpiredBlacklistedTokens(ctx, NowFunc().UTC())
}
