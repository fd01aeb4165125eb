package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/frogedu/backend/core"
	"github.com/frogedu/backend/core/classroom"
	"github.com/frogedu/backend/core/exam"
	"github.com/frogedu/backend/core/subscription"
	"github.com/frogedu/backend/core/user"
	examdatasvc "github.com/frogedu/backend/services/examdata"
	dummydb "github.com/frogedu/backend/storage/database/dummy"
)

var (
	app *Server

	usrRepo       user.Repository
	classRoomRepo classroom.Repository
	examRepo      exam.Repository
	subRepo       subscription.Repository

	usrSvc       *user.Service
	classRoomSvc *classroom.Service
	examSvc      *exam.Service
	subSvc       *subscription.Service

	examClient *examdatasvc.DummyClient
)

func TestMain(m *testing.M) {
	conf := &core.Config{
		TestMode:           true,
		Env:                "TEST",
		AppName:            "FrogEdu",
		SecretKey:          "secret",
		FreeClassRoomLimit: 2,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}

	// set up DB & repos
	db, err := dummydb.Open()
	if err != nil {
		os.Exit(1)
	}
	usrRepo = dummydb.NewUserRepository(db)
	classRoomRepo = dummydb.NewClassRoomRepository(db)
	examRepo = dummydb.NewExamRepository(db)
	subRepo = dummydb.NewSubscriptionRepository(db)

	// set up services
	usrSvc = user.NewService(usrRepo)
	subSvc = subscription.NewService(subRepo, conf)
	examClient = examdatasvc.NewDummyClient()
	examSvc = exam.NewService(examRepo, examClient, classRoomRepo, usrSvc)
	classRoomSvc = classroom.NewService(classRoomRepo, examSvc, subSvc)

	// set up server
	app = NewServer(ServerDeps{
		Conf:            conf,
		Logger:          nopLogger{},
		UserSvc:         usrSvc,
		ClassRoomSvc:    classRoomSvc,
		ExamSvc:         examSvc,
		SubscriptionSvc: subSvc,
	})

	os.Exit(m.Run())
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

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
	extra    interface{}
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
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func checkCode(t *testing.T, wantCode int, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body = %s", rec.Code, wantCode, rec.Body.String())
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decodeBody(): %v; body = %s", err, rec.Body.String())
	}
}
