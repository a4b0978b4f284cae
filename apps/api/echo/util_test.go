package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/activity"
	"github.com/darasahq/darasa/core/dashboard"
	"github.com/darasahq/darasa/core/user"
	emailsvc "github.com/darasahq/darasa/services/email"
	inmemdb "github.com/darasahq/darasa/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type testEnv struct {
	db      *inmemdb.DB
	usrRepo user.Repository
	usrSvc  *user.Service
	acadSvc *academic.Service
	actSvc  *activity.Service
	dashSvc *dashboard.Service
	server  Server
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	core.Conf.Debug = false
	core.Conf.TestMode = true

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}

	mailSvc := emailsvc.NewConsoleServiceMock()
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, inmemdb.NewTokenRepository(db), mailSvc)
	acadSvc := academic.NewService(inmemdb.NewAcademicRepository(db))
	actSvc := activity.NewService(inmemdb.NewActivityRepository(db))
	dashSvc := dashboard.NewService(
		inmemdb.NewDashboardRepository(db), usrSvc, core.NewCache(core.Conf.DashboardCacheTimeout))

	srv := NewServer(&Options{
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		AcademicSvc:    acadSvc,
		ActivitySvc:    actSvc,
		DashboardSvc:   dashSvc,
		MailSvc:        mailSvc,
		Logger:         core.StdLogger{Std: log.New(os.Stdout, "", log.LstdFlags)},
	})

	return &testEnv{
		db:      db,
		usrRepo: usrRepo,
		usrSvc:  usrSvc,
		acadSvc: acadSvc,
		actSvc:  actSvc,
		dashSvc: dashSvc,
		server:  srv,
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func createUser(t *testing.T, env *testEnv, firstName, lastName, email, role, pwd string, active bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		ID:        uuid.New().String(),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Role:      role,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := env.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func createStudent(t *testing.T, env *testEnv, usr user.User, st user.Student) user.Student {
	t.Helper()
	now := time.Now().UTC()
	st.ID = uuid.New().String()
	st.UserID = usr.ID
	if st.FullName == "" {
		st.FullName = usr.Name()
	}
	st.CreatedAt = now
	st.UpdatedAt = now
	st, err := env.usrRepo.CreateStudent(context.Background(), st)
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	st.User = usr
	return st
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshalBody(rec *httptest.ResponseRecorder, v interface{}) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	t.Helper()
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
