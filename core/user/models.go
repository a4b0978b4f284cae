package user

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/darasahq/darasa/core"
)

// Roles
const (
	RoleSecondaryStudent  = "secondary_student"
	RoleUniversityStudent = "university_student"
	RoleParent            = "parent"
	RoleTeacher           = "teacher"
	RoleAdmin             = "admin"
)

var (
	AllRoles     = []string{RoleSecondaryStudent, RoleUniversityStudent, RoleParent, RoleTeacher, RoleAdmin}
	StudentRoles = []string{RoleSecondaryStudent, RoleUniversityStudent}

	Roles = []Role{
		{Name: "Secondary Student", Value: RoleSecondaryStudent},
		{Name: "University Student", Value: RoleUniversityStudent},
		{Name: "Parent", Value: RoleParent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	PhoneNumber        string    `json:"phone_number,omitempty"`
	Role               string    `json:"role"`
	StaffID            string    `json:"staff_id,omitempty"` // teachers only
	IsActive           bool      `json:"is_active"`
	MustChangePassword bool      `json:"must_change_password"`
	PasswordHash       []byte    `json:"-"`
	PasswordChangedAt  time.Time `json:"-"`          // UTC
	LastLoginAt        time.Time `json:"last_login"` // UTC
	CreatedAt          time.Time `json:"created_at"` // UTC
	UpdatedAt          time.Time `json:"updated_at"` // UTC
}

func (u *User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u *User) IsParent() bool  { return u.Role == RoleParent }

func (u *User) IsStudent() bool {
	return u.Role == RoleSecondaryStudent || u.Role == RoleUniversityStudent
}

// Student is the student profile attached to a student User.
// StudentID identifies secondary students; MatricNumber identifies
// university students.
type Student struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	StudentID    string    `json:"student_id,omitempty"`
	MatricNumber string    `json:"matric_number,omitempty"`
	FullName     string    `json:"full_name"`
	Grade        string    `json:"grade,omitempty"` // e.g. "SS2", "200L"
	School       string    `json:"school,omitempty"`
	Gender       string    `json:"gender,omitempty"`
	ParentID     string    `json:"parent_id,omitempty"` // User.ID of the parent
	CreatedAt    time.Time `json:"created_at"`          // UTC
	UpdatedAt    time.Time `json:"updated_at"`          // UTC

	User User `json:"user,omitempty"` // populated on reads
}

// PasswordResetToken is a single-use, time-boxed token mailed to a user
// who forgot their password.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time // UTC
	IsUsed    bool
	CreatedAt time.Time // UTC
}

func (t PasswordResetToken) IsValidAt(now time.Time) bool {
	return !t.IsUsed && now.Before(t.ExpiresAt)
}

// BlacklistedToken is a revoked JWT held until its natural expiry.
type BlacklistedToken struct {
	ID        string
	Token     string
	ExpiresAt time.Time // UTC
	CreatedAt time.Time // UTC
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Email           string `json:"email" validate:"required,email"`
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	PhoneNumber     string `json:"phone_number"`
	Role            string `json:"role" validate:"required,role"`
	StaffID         string `json:"staff_id"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.StaffID = core.CleanString(nu.StaffID)

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkEmailUniqueness(nu.Email)
}

// ChangePassword carries a password change request. CurrentPassword is
// required unless the account is still on its temporary password.
type ChangePassword struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password" validate:"required"`
	ConfirmNewPassword string `json:"confirm_new_password" validate:"required,eqfield=NewPassword"`
}

func (cp *ChangePassword) Validate() error { return core.Validate.Struct(cp) }

type ForgotPassword struct {
	Email string `json:"email" validate:"required,email"`
}

func (fp *ForgotPassword) Validate() error {
	fp.Email = core.CleanString(fp.Email, true /* lower */)
	return core.Validate.Struct(fp)
}

type ResetPassword struct {
	Token              string `json:"token" validate:"required"`
	NewPassword        string `json:"new_password" validate:"required"`
	ConfirmNewPassword string `json:"confirm_new_password" validate:"required,eqfield=NewPassword"`
}

func (rp *ResetPassword) Validate() error { return core.Validate.Struct(rp) }
