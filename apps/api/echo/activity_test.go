package echoapi

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darasahq/darasa/core/activity"
	"github.com/darasahq/darasa/core/user"
)

// enrollStudent creates a student registered for a fresh class and returns
// their token along with the class ID.
func enrollStudent(t *testing.T, env *testEnv) (user.Student, user.User, string, string) {
	t.Helper()

	teacher := createUser(t, env, "Tina", "Eze", "tina@test.cd", user.RoleTeacher, "", true)
	class := seedClass(env, teacher, "Mathematics", "SS2", true)

	usr := createUser(t, env, "Amina", "Yusuf", "amina@test.cd", user.RoleSecondaryStudent, "", true)
	st := createStudent(t, env, usr, user.Student{StudentID: "STU-001", Grade: "SS2"})
	token := getToken(t, usr)

	req, rec := newAuthRequest(http.MethodPost, "/v1/academics/subjects/register", token,
		registerBody("Mathematics"))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	return st, teacher, class.ID, token
}

func createActivity(t *testing.T, env *testEnv, teacher user.User, classID string, due time.Time) activity.ClassActivity {
	t.Helper()
	body := []byte(fmt.Sprintf(`{
		"class_id": %q, "title": "Algebra quiz", "type": "quiz", "due_date": %q,
		"questions": [
			{"text": "2+2?", "type": "multiple_choice", "options": ["3", "4"], "correct_answer": "4", "points": 5},
			{"text": "The earth is flat.", "type": "true_false", "correct_answer": "false", "points": 5}
		]
	}`, classID, due.Format(time.RFC3339)))

	req, rec := newAuthRequest(http.MethodPost, "/v1/class-activities", getToken(t, teacher), body)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var act activity.ClassActivity
	require.NoError(t, unmarshalBody(rec, &act))
	return act
}

func Test_activityApi_attemptLifecycle(t *testing.T) {
	env := setup(t)
	_, teacher, classID, token := enrollStudent(t, env)
	act := createActivity(t, env, teacher, classID, time.Now().UTC().Add(24*time.Hour))

	// listed as pending before starting
	req, rec := newAuthRequest(http.MethodGet, "/v1/class-activities", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var items []activity.ActivityListItem
	require.NoError(t, unmarshalBody(rec, &items))
	require.Len(t, items, 1)
	assert.Equal(t, activity.StatusPending, items[0].AttemptStatus)

	// questions are off-limits until the attempt starts
	req, rec = newAuthRequest(http.MethodGet, "/v1/class-activities/"+act.ID+"/questions", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodPost, "/v1/class-activities/"+act.ID+"/start", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var att activity.StudentClassActivity
	require.NoError(t, unmarshalBody(rec, &att))
	assert.Equal(t, activity.StatusInProgress, att.Status)

	// starting again resumes the same attempt
	req, rec = newAuthRequest(http.MethodPost, "/v1/class-activities/"+act.ID+"/start", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var att2 activity.StudentClassActivity
	require.NoError(t, unmarshalBody(rec, &att2))
	assert.Equal(t, att.ID, att2.ID)

	// paging
	req, rec = newAuthRequest(http.MethodGet, "/v1/class-activities/"+act.ID+"/questions?page=1&page_size=1", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var qPage activity.QuestionPage
	require.NoError(t, unmarshalBody(rec, &qPage))
	assert.Equal(t, 2, qPage.Total)
	require.Len(t, qPage.Questions, 1)

	// one right, one wrong
	questions := qPage.Questions
	req, rec = newAuthRequest(http.MethodGet, "/v1/class-activities/"+act.ID+"/questions?page=2&page_size=1", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, unmarshalBody(rec, &qPage))
	questions = append(questions, qPage.Questions...)
	require.Len(t, questions, 2)

	// first question right, second wrong
	answers := fmt.Sprintf(`{"answers": {%q: "4", %q: "true"}}`, questions[0].ID, questions[1].ID)
	req, rec = newAuthRequest(http.MethodPost, "/v1/class-activities/"+act.ID+"/submit", token, []byte(answers))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res activity.SubmissionResult
	require.NoError(t, unmarshalBody(rec, &res))
	assert.Equal(t, activity.StatusSubmitted, res.Status)
	assert.Equal(t, 5, res.Score)
	assert.Equal(t, 10, res.TotalPoints)

	// no second submission
	req, rec = newAuthRequest(http.MethodPost, "/v1/class-activities/"+act.ID+"/submit", token, []byte(answers))
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func Test_activityApi_lateSubmission(t *testing.T) {
	env := setup(t)
	_, teacher, classID, token := enrollStudent(t, env)
	act := createActivity(t, env, teacher, classID, time.Now().UTC().Add(-time.Hour))

	req, rec := newAuthRequest(http.MethodPost, "/v1/class-activities/"+act.ID+"/start", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodPost, "/v1/class-activities/"+act.ID+"/submit", token,
		[]byte(`{"answers": {}}`))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res activity.SubmissionResult
	require.NoError(t, unmarshalBody(rec, &res))
	assert.Equal(t, activity.StatusLate, res.Status)
	assert.Equal(t, 0, res.Score)
}

func Test_activityApi_examinationAlias(t *testing.T) {
	env := setup(t)
	_, teacher, classID, token := enrollStudent(t, env)
	createActivity(t, env, teacher, classID, time.Now().UTC().Add(24*time.Hour))

	req, rec := newAuthRequest(http.MethodGet, "/v1/examinations?filter=upcoming", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var items []activity.ActivityListItem
	require.NoError(t, unmarshalBody(rec, &items))
	assert.Len(t, items, 1)

	req, rec = newAuthRequest(http.MethodGet, "/v1/examinations?filter=past", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, unmarshalBody(rec, &items))
	assert.Len(t, items, 0)
}

func Test_activityApi_assignmentLifecycle(t *testing.T) {
	env := setup(t)
	st, teacher, classID, token := enrollStudent(t, env)

	due := time.Now().UTC().Add(48 * time.Hour)
	body := []byte(fmt.Sprintf(
		`{"class_id": %q, "title": "Essay on photosynthesis", "priority": "high", "due_date": %q, "student_ids": [%q]}`,
		classID, due.Format(time.RFC3339), st.ID))
	req, rec := newAuthRequest(http.MethodPost, "/v1/assignments", getToken(t, teacher), body)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var asg activity.Assignment
	require.NoError(t, unmarshalBody(rec, &asg))

	// visible on the student's list
	req, rec = newAuthRequest(http.MethodGet, "/v1/assignments", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var items []activity.AssignmentListItem
	require.NoError(t, unmarshalBody(rec, &items))
	require.Len(t, items, 1)

	// draft before submit; last write wins
	req, rec = newAuthRequest(http.MethodPost, "/v1/assignments/"+asg.ID+"/start", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodPost, "/v1/assignments/"+asg.ID+"/draft", token,
		[]byte(`{"submission_text": "First draft"}`))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodPost, "/v1/assignments/"+asg.ID+"/draft", token,
		[]byte(`{"submission_text": "Second draft"}`))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodGet, "/v1/assignments/"+asg.ID+"/preview", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sub activity.StudentAssignment
	require.NoError(t, unmarshalBody(rec, &sub))
	assert.Equal(t, "Second draft", sub.SubmissionText)
	assert.Equal(t, activity.StatusDraft, sub.Status)

	req, rec = newAuthRequest(http.MethodPost, "/v1/assignments/"+asg.ID+"/submit", token,
		[]byte(`{"submission_text": "Final version"}`))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, unmarshalBody(rec, &sub))
	assert.Equal(t, activity.StatusSubmitted, sub.Status)

	// final submissions are frozen
	req, rec = newAuthRequest(http.MethodPost, "/v1/assignments/"+asg.ID+"/draft", token,
		[]byte(`{"submission_text": "Too late"}`))
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	// grading
	gradePath := "/v1/assignments/" + asg.ID + "/grade/" + st.ID
	req, rec = newAuthRequest(http.MethodPost, gradePath, getToken(t, teacher),
		[]byte(`{"grade": 85, "feedback": "Solid work"}`))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, unmarshalBody(rec, &sub))
	assert.Equal(t, activity.StatusGraded, sub.Status)
	require.NotNil(t, sub.Grade)
	assert.Equal(t, 85.0, *sub.Grade)

	req, rec = newAuthRequest(http.MethodGet, "/v1/assignments/"+asg.ID+"/submission", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, unmarshalBody(rec, &sub))
	assert.Equal(t, "Solid work", sub.Feedback)
}

func Test_activityApi_accessControl(t *testing.T) {
	env := setup(t)
	_, teacher, classID, _ := enrollStudent(t, env)
	act := createActivity(t, env, teacher, classID, time.Now().UTC().Add(24*time.Hour))

	// a student from another class cannot see the activity
	outsiderUsr := createUser(t, env, "Omar", "Diallo", "omar@test.cd", user.RoleSecondaryStudent, "", true)
	createStudent(t, env, outsiderUsr, user.Student{StudentID: "STU-099", Grade: "SS2"})
	outsiderToken := getToken(t, outsiderUsr)

	req, rec := newAuthRequest(http.MethodGet, "/v1/class-activities/"+act.ID, outsiderToken)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	// another teacher cannot create activities for this class
	otherTeacher := createUser(t, env, "Nora", "Bello", "nora@test.cd", user.RoleTeacher, "", true)
	body := []byte(fmt.Sprintf(`{
		"class_id": %q, "title": "Hijack quiz", "type": "quiz", "due_date": %q,
		"questions": [{"text": "?", "type": "short_answer", "correct_answer": "x", "points": 1}]
	}`, classID, time.Now().UTC().Add(time.Hour).Format(time.RFC3339)))
	req, rec = newAuthRequest(http.MethodPost, "/v1/class-activities", getToken(t, otherTeacher), body)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
}
