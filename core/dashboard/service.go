package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/user"
)

var (
	NowFunc = time.Now // mockable

	ErrNoChildren = core.NewNotFoundError("no children found for this parent")
)

type (
	Repository interface {
		GetNextClass(ctx context.Context, studentID string, now time.Time) (NextClass, bool, error)
		// QueryUpcomingActivities returns due activities of the given types,
		// soonest first. Empty types means all.
		QueryUpcomingActivities(ctx context.Context, studentID string, now time.Time, limit int, types ...string) ([]UpcomingActivity, error)
		GetAcademicProgress(ctx context.Context, studentID string) (AcademicProgress, error)
		QuerySemesterResults(ctx context.Context, studentID string) ([]SemesterResult, error)
		QueryReminders(ctx context.Context, userID string, now time.Time, limit int) ([]academic.Reminder, error)
		QueryLatestForumTopics(ctx context.Context, limit int) ([]ForumTopic, error)
		QueryUpcomingEvents(ctx context.Context, now time.Time, limit int) ([]Event, error)

		QueryTodayClasses(ctx context.Context, teacherID string, now time.Time) ([]academic.Class, error)
		CountActiveStudentsByTeacher(ctx context.Context, teacherID string) (GenderCount, error)
		CountPendingGrades(ctx context.Context, teacherID string) (int, error)
		QueryRecentActivityLogs(ctx context.Context, userID string, limit int) ([]ActivityLog, error)
		CreateActivityLog(ctx context.Context, entry ActivityLog) error

		GetAttendanceSummary(ctx context.Context, studentID string) (AttendanceSummary, error)
		GetFeeTotals(ctx context.Context, studentID string) (FeeTotals, error)
		CountUnreadMessages(ctx context.Context, userID string) (int, error)
		QueryRecentPayments(ctx context.Context, studentID string, limit int) ([]Payment, error)
	}

	Service struct {
		repo   Repository
		usrSvc *user.Service
		cache  *core.Cache
	}
)

const (
	listLimit = 5

	cacheKeyPrefix = "dashboard"
)

func NewService(repo Repository, usrSvc *user.Service, cache *core.Cache) *Service {
	return &Service{
		repo:   repo,
		usrSvc: usrSvc,
		cache:  cache,
	}
}

// SecondaryStudent builds the secondary student dashboard. The result is
// cached per student.
func (svc *Service) SecondaryStudent(ctx context.Context, st user.Student) (SecondaryStudentDashboard, error) {
	key := core.CacheKey(cacheKeyPrefix, user.RoleSecondaryStudent, st.ID)
	if cached, ok := svc.cache.Get(key); ok {
		if dash, ok := cached.(SecondaryStudentDashboard); ok {
			return dash, nil
		}
	}

	now := NowFunc().UTC()
	dash := SecondaryStudentDashboard{Profile: st}

	next, ok, err := svc.repo.GetNextClass(ctx, st.ID, now)
	if err != nil {
		return SecondaryStudentDashboard{}, errors.Wrap(err, "finding next class")
	}
	if ok {
		dash.NextClass = &next
	}

	if dash.UpcomingActivities, err = svc.repo.QueryUpcomingActivities(ctx, st.ID, now, listLimit); err != nil {
		return SecondaryStudentDashboard{}, errors.Wrap(err, "querying upcoming activities")
	}
	if dash.UpcomingTests, err = svc.repo.QueryUpcomingActivities(ctx, st.ID, now, listLimit, "test", "exam"); err != nil {
		return SecondaryStudentDashboard{}, errors.Wrap(err, "querying upcoming tests")
	}

	progress, err := svc.repo.GetAcademicProgress(ctx, st.ID)
	if err != nil && !core.IsNotFound(errors.Cause(err)) {
		return SecondaryStudentDashboard{}, errors.Wrap(err, "getting academic progress")
	}
	dash.Progress = ProgressView{AcademicProgress: progress, ProgressPercentage: progress.ProgressPercentage()}

	if dash.Reminders, err = svc.repo.QueryReminders(ctx, st.UserID, now, listLimit); err != nil {
		return SecondaryStudentDashboard{}, errors.Wrap(err, "querying reminders")
	}
	if dash.ForumTopics, err = svc.repo.QueryLatestForumTopics(ctx, listLimit); err != nil {
		return SecondaryStudentDashboard{}, errors.Wrap(err, "querying forum topics")
	}
	if dash.Events, err = svc.repo.QueryUpcomingEvents(ctx, now, listLimit); err != nil {
		return SecondaryStudentDashboard{}, errors.Wrap(err, "querying events")
	}

	emptyNilSlices(&dash)
	svc.cache.Set(key, dash)
	return dash, nil
}

// UniversityStudent builds the university student dashboard.
func (svc *Service) UniversityStudent(ctx context.Context, st user.Student) (UniversityStudentDashboard, error) {
	now := NowFunc().UTC()
	var dash UniversityStudentDashboard

	next, ok, err := svc.repo.GetNextClass(ctx, st.ID, now)
	if err != nil {
		return UniversityStudentDashboard{}, errors.Wrap(err, "finding next class")
	}
	if ok {
		dash.NextClass = &next
	}

	if dash.UpcomingActivities, err = svc.repo.QueryUpcomingActivities(ctx, st.ID, now, listLimit); err != nil {
		return UniversityStudentDashboard{}, errors.Wrap(err, "querying upcoming activities")
	}
	if dash.UpcomingTests, err = svc.repo.QueryUpcomingActivities(ctx, st.ID, now, listLimit, "test", "exam"); err != nil {
		return UniversityStudentDashboard{}, errors.Wrap(err, "querying upcoming tests")
	}

	progress, err := svc.repo.GetAcademicProgress(ctx, st.ID)
	if err != nil && !core.IsNotFound(errors.Cause(err)) {
		return UniversityStudentDashboard{}, errors.Wrap(err, "getting academic progress")
	}
	dash.CGPA = progress.CGPA

	if dash.SemesterResults, err = svc.repo.QuerySemesterResults(ctx, st.ID); err != nil {
		return UniversityStudentDashboard{}, errors.Wrap(err, "querying semester results")
	}
	if dash.Reminders, err = svc.repo.QueryReminders(ctx, st.UserID, now, listLimit); err != nil {
		return UniversityStudentDashboard{}, errors.Wrap(err, "querying reminders")
	}
	if dash.Events, err = svc.repo.QueryUpcomingEvents(ctx, now, listLimit); err != nil {
		return UniversityStudentDashboard{}, errors.Wrap(err, "querying events")
	}

	if dash.UpcomingActivities == nil {
		dash.UpcomingActivities = []UpcomingActivity{}
	}
	if dash.UpcomingTests == nil {
		dash.UpcomingTests = []UpcomingActivity{}
	}
	if dash.SemesterResults == nil {
		dash.SemesterResults = []SemesterResult{}
	}
	if dash.Reminders == nil {
		dash.Reminders = []academic.Reminder{}
	}
	if dash.Events == nil {
		dash.Events = []Event{}
	}
	return dash, nil
}

// Teacher builds the teacher dashboard.
func (svc *Service) Teacher(ctx context.Context, teacher user.User) (TeacherDashboard, error) {
	now := NowFunc().UTC()
	var dash TeacherDashboard
	var err error

	if dash.TodayClasses, err = svc.repo.QueryTodayClasses(ctx, teacher.ID, now); err != nil {
		return TeacherDashboard{}, errors.Wrap(err, "querying today's classes")
	}
	if dash.ActiveStudents, err = svc.repo.CountActiveStudentsByTeacher(ctx, teacher.ID); err != nil {
		return TeacherDashboard{}, errors.Wrap(err, "counting active students")
	}
	if dash.PendingGrades, err = svc.repo.CountPendingGrades(ctx, teacher.ID); err != nil {
		return TeacherDashboard{}, errors.Wrap(err, "counting pending grades")
	}
	if dash.RecentActivity, err = svc.repo.QueryRecentActivityLogs(ctx, teacher.ID, listLimit); err != nil {
		return TeacherDashboard{}, errors.Wrap(err, "querying activity log")
	}

	if dash.TodayClasses == nil {
		dash.TodayClasses = []academic.Class{}
	}
	if dash.RecentActivity == nil {
		dash.RecentActivity = []ActivityLog{}
	}
	return dash, nil
}

// Parent builds the parent dashboard around their first registered child.
func (svc *Service) Parent(ctx context.Context, parent user.User) (ParentDashboard, error) {
	children, err := svc.usrSvc.QueryChildren(ctx, parent.ID)
	if err != nil {
		return ParentDashboard{}, errors.Wrap(err, "querying children")
	}
	if len(children) == 0 {
		return ParentDashboard{}, ErrNoChildren
	}
	child := children[0]

	dash := ParentDashboard{Child: child}
	if dash.Attendance, err = svc.repo.GetAttendanceSummary(ctx, child.ID); err != nil {
		return ParentDashboard{}, errors.Wrap(err, "getting attendance")
	}
	dash.AttendanceRate = dash.Attendance.Percentage()

	if dash.Fees, err = svc.repo.GetFeeTotals(ctx, child.ID); err != nil {
		return ParentDashboard{}, errors.Wrap(err, "getting fee totals")
	}
	if dash.UnreadMessages, err = svc.repo.CountUnreadMessages(ctx, parent.ID); err != nil {
		return ParentDashboard{}, errors.Wrap(err, "counting unread messages")
	}
	if dash.RecentPayments, err = svc.repo.QueryRecentPayments(ctx, child.ID, listLimit); err != nil {
		return ParentDashboard{}, errors.Wrap(err, "querying payments")
	}

	if dash.RecentPayments == nil {
		dash.RecentPayments = []Payment{}
	}
	return dash, nil
}

// LogActivity appends an entry to the recent-activity feed. Failures only
// get logged by callers, a missing feed entry never fails the operation.
func (svc *Service) LogActivity(ctx context.Context, userID, action, detail string) error {
	return svc.repo.CreateActivityLog(ctx, ActivityLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Detail:    detail,
		CreatedAt: NowFunc().UTC(),
	})
}

// InvalidateStudent drops the student's cached dashboard.
func (svc *Service) InvalidateStudent(studentID string) {
	svc.cache.Delete(core.CacheKey(cacheKeyPrefix, user.RoleSecondaryStudent, studentID))
}

func emptyNilSlices(dash *SecondaryStudentDashboard) {
	if dash.UpcomingActivities == nil {
		dash.UpcomingActivities = []UpcomingActivity{}
	}
	if dash.UpcomingTests == nil {
		dash.UpcomingTests = []UpcomingActivity{}
	}
	if dash.Reminders == nil {
		dash.Reminders = []academic.Reminder{}
	}
	if dash.ForumTopics == nil {
		dash.ForumTopics = []ForumTopic{}
	}
	if dash.Events == nil {
		dash.Events = []Event{}
	}
}
