package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"ely.by/multilogin/internal/session"
	"ely.by/multilogin/internal/yggdrasil"
)

type LoginProcessorMock struct {
	mock.Mock
}

func (m *LoginProcessorMock) Login(ctx context.Context, username, serverId, ip string) (*session.Profile, error) {
	args := m.Called(ctx, username, serverId, ip)
	var result *session.Profile
	if casted, ok := args.Get(0).(*session.Profile); ok {
		result = casted
	}

	return result, args.Error(1)
}

type SessionsTestSuite struct {
	suite.Suite

	App *Sessions

	Processor *LoginProcessorMock
}

func (t *SessionsTestSuite) SetupSubTest() {
	t.Processor = &LoginProcessorMock{}

	var err error
	t.App, err = NewSessions(t.Processor)
	t.Require().NoError(err)
}

func (t *SessionsTestSuite) TearDownSubTest() {
	t.Processor.AssertExpectations(t.T())
}

func (t *SessionsTestSuite) TestHasJoined() {
	t.Run("successfully verified", func() {
		t.Processor.On("Login", mock.Anything, "notch", "serverid", "127.0.0.1").Once().Return(&session.Profile{
			LocalUuid: "aff0302a24a2427fb6f39dflocal0001",
			ServiceId: 1,
			Username:  "notch",
			Properties: map[string]*yggdrasil.Property{
				"textures": {Name: "textures", Value: "payload", Signature: "signature"},
			},
		}, nil)

		req := httptest.NewRequest("GET", "http://multilogin/session/minecraft/hasJoined?username=notch&serverId=serverid&ip=127.0.0.1", nil)
		w := httptest.NewRecorder()

		t.App.Handler().ServeHTTP(w, req)
		result := w.Result()

		t.Equal(http.StatusOK, result.StatusCode)
		body, _ := io.ReadAll(result.Body)
		t.JSONEq(`{
			"id": "aff0302a24a2427fb6f39dflocal0001",
			"name": "notch",
			"properties": [
				{
					"name": "textures",
					"value": "payload",
					"signature": "signature"
				}
			]
		}`, string(body))
	})

	t.Run("not verified by any service", func() {
		t.Processor.On("Login", mock.Anything, "notch", "serverid", "").Once().Return(nil, nil)

		req := httptest.NewRequest("GET", "http://multilogin/session/minecraft/hasJoined?username=notch&serverId=serverid", nil)
		w := httptest.NewRecorder()

		t.App.Handler().ServeHTTP(w, req)

		t.Equal(http.StatusNoContent, w.Result().StatusCode)
	})

	t.Run("not whitelisted", func() {
		t.Processor.On("Login", mock.Anything, "notch", "serverid", "").Once().Return(nil, session.NotWhitelistedError)

		req := httptest.NewRequest("GET", "http://multilogin/session/minecraft/hasJoined?username=notch&serverId=serverid", nil)
		w := httptest.NewRecorder()

		t.App.Handler().ServeHTTP(w, req)

		t.Equal(http.StatusForbidden, w.Result().StatusCode)
	})

	t.Run("missing query parameters", func() {
		req := httptest.NewRequest("GET", "http://multilogin/session/minecraft/hasJoined?username=notch", nil)
		w := httptest.NewRecorder()

		t.App.Handler().ServeHTTP(w, req)

		t.Equal(http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("processing error", func() {
		t.Processor.On("Login", mock.Anything, "notch", "serverid", "").Once().Return(nil, errors.New("store error"))

		req := httptest.NewRequest("GET", "http://multilogin/session/minecraft/hasJoined?username=notch&serverId=serverid", nil)
		w := httptest.NewRecorder()

		t.App.Handler().ServeHTTP(w, req)

		t.Equal(http.StatusInternalServerError, w.Result().StatusCode)
	})
}

func TestSessions(t *testing.T) {
	suite.Run(t, new(SessionsTestSuite))
}
