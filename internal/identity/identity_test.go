package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"breakout/internal/mocks"
	"breakout/internal/records"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func cookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	return nil
}

func TestResolver_IssueAndVerify(t *testing.T) {
	req := require.New(t)
	r := NewResolver("secret", records.NewMemory(), time.Hour)

	token, err := r.Issue("u1")
	req.NoError(err)

	id, err := r.Verify(token)
	req.NoError(err)
	req.Equal("u1", id)
}

func TestResolver_Verify_Rejects(t *testing.T) {
	req := require.New(t)
	r := NewResolver("secret", records.NewMemory(), time.Hour)

	other, err := NewResolver("other-secret", records.NewMemory(), time.Hour).Issue("u1")
	req.NoError(err)
	_, err = r.Verify(other)
	req.ErrorIs(err, ErrInvalidToken)

	expired, err := NewResolver("secret", records.NewMemory(), -time.Hour).Issue("u1")
	req.NoError(err)
	_, err = r.Verify(expired)
	req.ErrorIs(err, ErrInvalidToken)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1", Issuer: "someone-else"}).
		SignedString([]byte("secret"))
	req.NoError(err)
	_, err = r.Verify(foreign)
	req.ErrorIs(err, ErrInvalidToken)

	_, err = r.Verify("garbage")
	req.ErrorIs(err, ErrInvalidToken)
}

func TestResolver_Resolve_NewGuest(t *testing.T) {
	req := require.New(t)
	store := records.NewMemory()
	r := NewResolver("secret", store, time.Hour)

	// Given a request without cookie
	rec := httptest.NewRecorder()
	ident, err := r.Resolve(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	// Then a guest is created and a cookie issued
	req.NoError(err)
	req.Equal(records.DefaultDisplayName, ident.DisplayName)
	req.NotEmpty(ident.ID)

	c := cookieFrom(t, rec)
	req.NotNil(c)
	req.True(c.HttpOnly)
	id, err := r.Verify(c.Value)
	req.NoError(err)
	req.Equal(ident.ID, id)

	_, err = store.FindParticipant(context.Background(), ident.ID)
	req.NoError(err)
}

func TestResolver_Resolve_KnownParticipant(t *testing.T) {
	req := require.New(t)
	store := records.NewMemory()
	_, err := store.CreateParticipant(context.Background(), "u1", "Alice")
	req.NoError(err)
	r := NewResolver("secret", store, time.Hour)

	token, err := r.Issue("u1")
	req.NoError(err)
	httpReq := httptest.NewRequest(http.MethodGet, "/", nil)
	httpReq.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rec := httptest.NewRecorder()

	ident, err := r.Resolve(rec, httpReq)

	req.NoError(err)
	req.Equal(Identity{ID: "u1", DisplayName: "Alice"}, ident)
	req.Nil(cookieFrom(t, rec), "cookie should not be reissued")
}

func TestResolver_Resolve_RecreatesMissingParticipant(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockParticipantStore(ctrl)
	r := NewResolver("secret", store, time.Hour)

	// Given the token is valid but the record vanished
	store.EXPECT().FindParticipant(gomock.Any(), "u1").Return(records.Participant{}, records.ErrNotFound).Times(1)
	store.EXPECT().CreateParticipant(gomock.Any(), "u1", records.DefaultDisplayName).
		Return(records.Participant{LookupID: "u1", DisplayName: records.DefaultDisplayName}, nil).Times(1)

	token, err := r.Issue("u1")
	req.NoError(err)
	httpReq := httptest.NewRequest(http.MethodGet, "/", nil)
	httpReq.AddCookie(&http.Cookie{Name: CookieName, Value: token})

	ident, err := r.Resolve(httptest.NewRecorder(), httpReq)

	req.NoError(err)
	req.Equal("u1", ident.ID)
}

func TestResolver_Resolve_RecreateRaceUsesWinner(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockParticipantStore(ctrl)
	r := NewResolver("secret", store, time.Hour)

	// Given another request recreates the record first
	gomock.InOrder(
		store.EXPECT().FindParticipant(gomock.Any(), "u1").Return(records.Participant{}, records.ErrNotFound),
		store.EXPECT().CreateParticipant(gomock.Any(), "u1", records.DefaultDisplayName).
			Return(records.Participant{}, records.ErrConflict),
		store.EXPECT().FindParticipant(gomock.Any(), "u1").
			Return(records.Participant{LookupID: "u1", DisplayName: records.DefaultDisplayName}, nil),
	)

	token, err := r.Issue("u1")
	req.NoError(err)
	httpReq := httptest.NewRequest(http.MethodGet, "/", nil)
	httpReq.AddCookie(&http.Cookie{Name: CookieName, Value: token})

	ident, err := r.Resolve(httptest.NewRecorder(), httpReq)

	// Then the winner's record is returned
	req.NoError(err)
	req.Equal(Identity{ID: "u1", DisplayName: records.DefaultDisplayName}, ident)
}

func TestResolver_Resolve_ConcurrentRecreate(t *testing.T) {
	req := require.New(t)
	r := NewResolver("secret", records.NewMemory(), time.Hour)
	token, err := r.Issue("u1")
	req.NoError(err)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			httpReq := httptest.NewRequest(http.MethodGet, "/", nil)
			httpReq.AddCookie(&http.Cookie{Name: CookieName, Value: token})
			ident, err := r.Resolve(httptest.NewRecorder(), httpReq)
			if err == nil && ident.ID != "u1" {
				err = errors.New("resolved to " + ident.ID)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		req.NoError(err)
	}
}

func TestResolver_Resolve_StoreFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockParticipantStore(ctrl)
	r := NewResolver("secret", store, time.Hour)
	boom := errors.New("connection refused")

	store.EXPECT().CreateParticipant(gomock.Any(), gomock.Any(), records.DefaultDisplayName).
		Return(records.Participant{}, boom).Times(1)

	_, err := r.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	req.ErrorIs(err, boom)
}
