package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	. "github.com/trezcool/rapor/apps/api/echo"
	"github.com/trezcool/rapor/core/report"
	"github.com/trezcool/rapor/core/user"
	"github.com/trezcool/rapor/services/email"
	"github.com/trezcool/rapor/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errInvalidToken = httpErr{Error: "invalid or expired jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

// setup serves the report API on top of a fresh in-memory school.
func setup(t *testing.T) (Server, *testutil.Fixture) {
	t.Helper()

	fx := testutil.NewFixture(t)
	conf := testutil.Config()
	logger := testutil.Logger()
	validate, translator := testutil.NewValidation()

	emailsvc.ResetSentMessages()
	reportSvc := report.NewService(report.ServiceDeps{
		Directory: fx.Dir,
		Repo:      fx.Repo,
		MailSvc:   emailsvc.NewConsoleServiceMock(conf, logger),
		Logger:    logger,
		Validate:  validate,
	})

	app := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		ReportSvc:      reportSvc,
		Translator:     translator,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = app.Close() })
	return app, fx
}

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
	conf := testutil.Config()
	token, err := user.GenerateToken(user.NewClaims(usr, conf.AppName, time.Hour), []byte(conf.SecretKey))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
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

func runHttpTests(t *testing.T, app Server, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode(%s): %v", rec.Body.String(), err)
	}
}
