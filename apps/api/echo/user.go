package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/user"
)

type userApi struct {
	svc *user.Service
}

func registerUserAPI(g *echo.Group, jwt, auth, pwdGuard echo.MiddlewareFunc, svc *user.Service) {
	api := userApi{svc: svc}

	ug := g.Group("/users")

	// un-authed endpoints
	// TODO: rate limit the login & `/password-reset*` endpoints
	ug.POST("/login/secondary-student", api.loginSecondaryStudent)
	ug.POST("/login/university-student", api.loginUniversityStudent)
	ug.POST("/login/parent", api.loginParent)
	ug.POST("/login/teacher", api.loginTeacher)
	ug.POST("/login/admin", api.loginAdmin)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := ug.Group("", jwt, auth, pwdGuard)
	ag.POST("/logout", api.logout)
	ag.POST("/change-password", api.changePassword)
	ag.GET("/me", api.me)

	// admin endpoints
	adm := ag.Group("", adminMiddleware())
	adm.POST("/register", api.create)
	adm.POST("/students", api.createStudent)
	adm.GET("", api.query)
	adm.GET("/roles", api.queryRoles)
	adm.GET("/role/:role", api.queryByRole)
	adm.GET("/:id", api.retrieve)
	adm.POST("/:id/activate", api.activate)
	adm.POST("/:id/deactivate", api.deactivate)
}

// Handlers

func (api *userApi) loginSecondaryStudent(ctx echo.Context) error {
	var data secondaryStudentLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to secondaryStudentLoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	usr, err := api.svc.AuthenticateSecondaryStudent(ctx.Request().Context(), data.StudentID, data.FullName, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating secondary student")
	}
	return api.loginResponse(ctx, usr)
}

func (api *userApi) loginUniversityStudent(ctx echo.Context) error {
	var data universityStudentLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to universityStudentLoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	usr, err := api.svc.AuthenticateUniversityStudent(ctx.Request().Context(), data.MatricNumber, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating university student")
	}
	return api.loginResponse(ctx, usr)
}

func (api *userApi) loginParent(ctx echo.Context) error {
	var data parentLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to parentLoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	usr, err := api.svc.AuthenticateParent(ctx.Request().Context(), data.Email, data.ChildStudentID, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating parent")
	}
	return api.loginResponse(ctx, usr)
}

func (api *userApi) loginTeacher(ctx echo.Context) error {
	var data teacherLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to teacherLoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	usr, err := api.svc.AuthenticateTeacher(ctx.Request().Context(), data.StaffID, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating teacher")
	}
	return api.loginResponse(ctx, usr)
}

func (api *userApi) loginAdmin(ctx echo.Context) error {
	var data adminLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to adminLoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	usr, err := api.svc.AuthenticateAdmin(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating admin")
	}
	return api.loginResponse(ctx, usr)
}

func (api *userApi) loginResponse(ctx echo.Context, usr user.User) error {
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{
		Token:              token,
		MustChangePassword: usr.MustChangePassword,
		User:               usr,
	})
}

func (api *userApi) logout(ctx echo.Context) error {
	token, err := getContextToken(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	alreadyRevoked, err := api.svc.RevokeToken(ctx.Request().Context(), token.Raw, time.Unix(claims.ExpiresAt, 0))
	if err != nil {
		return errors.Wrap(err, "revoking token")
	}
	if alreadyRevoked {
		return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Token already revoked."})
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Logged out."})
}

func (api *userApi) changePassword(ctx echo.Context) error {
	var data user.ChangePassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	usr, err = api.svc.ChangePassword(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "changing password")
	}
	ctx.Set(contextUserKey, usr)

	// previously issued tokens are now stale; hand back a fresh one
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: usr})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data user.ForgotPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ForgotPassword")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if !(err == nil || core.IsNotFound(errors.Cause(err))) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetPassword")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) createStudent(ctx echo.Context) error {
	var data newStudentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to newStudentRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr, err := api.svc.GetByID(ctx.Request().Context(), data.UserID)
	if err != nil {
		return errors.Wrap(err, "finding student user")
	}
	if !usr.IsStudent() {
		return core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: "user is not a student"})
	}

	st, err := api.svc.CreateStudent(ctx.Request().Context(), user.Student{
		UserID:       usr.ID,
		StudentID:    data.StudentID,
		MatricNumber: data.MatricNumber,
		FullName:     data.FullName,
		Grade:        data.Grade,
		School:       data.School,
		Gender:       data.Gender,
		ParentID:     data.ParentID,
	})
	if err != nil {
		return errors.Wrap(err, "creating student profile")
	}
	st.User = usr
	return ctx.JSON(http.StatusCreated, st)
}

func (api *userApi) query(ctx echo.Context) error {
	users, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) queryByRole(ctx echo.Context) error {
	role := ctx.Param("role")
	if !user.IsValidRole(role) {
		return errHttpNotFound
	}
	users, err := api.svc.QueryByRole(ctx.Request().Context(), role)
	if err != nil {
		return errors.Wrap(err, "querying users by role")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) activate(ctx echo.Context) error {
	return api.setActive(ctx, true)
}

func (api *userApi) deactivate(ctx echo.Context) error {
	return api.setActive(ctx, false)
}

func (api *userApi) setActive(ctx echo.Context, active bool) error {
	usr, err := api.svc.SetActive(ctx.Request().Context(), ctx.Param("id"), active)
	if err != nil {
		return errors.Wrap(err, "setting user active state")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// Requests & Responses

type (
	secondaryStudentLoginRequest struct {
		StudentID string `json:"student_id" validate:"required"`
		FullName  string `json:"full_name" validate:"required"`
		Password  string `json:"password" validate:"required"`
	}

	universityStudentLoginRequest struct {
		MatricNumber string `json:"matric_number" validate:"required"`
		Password     string `json:"password" validate:"required"`
	}

	parentLoginRequest struct {
		Email          string `json:"email" validate:"required,email"`
		ChildStudentID string `json:"child_student_id" validate:"required"`
		Password       string `json:"password" validate:"required"`
	}

	teacherLoginRequest struct {
		StaffID  string `json:"staff_id" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	adminLoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	newStudentRequest struct {
		UserID       string `json:"user_id" validate:"required"`
		StudentID    string `json:"student_id"`
		MatricNumber string `json:"matric_number"`
		FullName     string `json:"full_name" validate:"required"`
		Grade        string `json:"grade"`
		School       string `json:"school"`
		Gender       string `json:"gender"`
		ParentID     string `json:"parent_id"`
	}

	LoginResponse struct {
		Token              string    `json:"token"`
		MustChangePassword bool      `json:"must_change_password"`
		User               user.User `json:"user"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (r *secondaryStudentLoginRequest) Validate() error {
	r.StudentID = core.CleanString(r.StudentID)
	r.FullName = core.CleanString(r.FullName)
	return core.Validate.Struct(r)
}

func (r *universityStudentLoginRequest) Validate() error {
	r.MatricNumber = core.CleanString(r.MatricNumber)
	return core.Validate.Struct(r)
}

func (r *parentLoginRequest) Validate() error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	r.ChildStudentID = core.CleanString(r.ChildStudentID)
	return core.Validate.Struct(r)
}

func (r *teacherLoginRequest) Validate() error {
	r.StaffID = core.CleanString(r.StaffID)
	return core.Validate.Struct(r)
}

func (r *adminLoginRequest) Validate() error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return core.Validate.Struct(r)
}

func (r *newStudentRequest) Validate() error {
	r.StudentID = core.CleanString(r.StudentID)
	r.MatricNumber = core.CleanString(r.MatricNumber)
	r.FullName = core.CleanString(r.FullName)
	r.Grade = core.CleanString(r.Grade)
	r.School = core.CleanString(r.School)
	r.Gender = core.CleanString(r.Gender, true /* lower */)
	return core.Validate.Struct(r)
}
