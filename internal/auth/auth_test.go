package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/satellite/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestStaticTokenValidate(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)

	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)

	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":     {token: "abc", ok: true},
		"bearer  abc ":   {token: "abc", ok: true},
		"Basic abc":      {},
		"Bearer":         {},
		"":               {},
		"Bearer    \t  ": {},
	}
	for header, want := range cases {
		token, ok := BearerToken(header)
		if token != want.token || ok != want.ok {
			t.Fatalf("header=%q got=(%q,%v) want=(%q,%v)", header, token, ok, want.token, want.ok)
		}
	}
}

func TestRequire(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/open", Require(nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/locked", Require(StaticToken{Token: "s3cret"}), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		path   string
		header string
		want   int
	}{
		{path: "/open", want: http.StatusNoContent},
		{path: "/locked", want: http.StatusUnauthorized},
		{path: "/locked", header: "Bearer nope", want: http.StatusUnauthorized},
		{path: "/locked", header: "Bearer s3cret", want: http.StatusNoContent},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPost, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s with %q: got=%d want=%d", tc.path, tc.header, rec.Code, tc.want)
		}
	}
}
