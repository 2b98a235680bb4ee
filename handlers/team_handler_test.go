package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petanque-connect/server/handlers"
	"github.com/petanque-connect/server/middleware"
	"github.com/petanque-connect/server/models"
	"github.com/petanque-connect/server/realtime"
	"github.com/petanque-connect/server/repositories"
	"github.com/petanque-connect/server/routes"
	"github.com/petanque-connect/server/services"
	"github.com/petanque-connect/server/storage"
)

const testSecret = "test-secret"

type testServer struct {
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.NewJSONStore(t.TempDir(), logger)
	require.NoError(t, err)
	require.NoError(t, store.Write("users", []*models.User{
		{ID: "u1", Pseudo: "Marcel", Email: "marcel@example.com", AvatarColor: "#f59e0b"},
		{ID: "u2", FirstName: "Jean", LastName: "Fanny", AvatarColor: "#10b981"},
		{ID: "u3", Pseudo: "La Boule", AvatarColor: "#3b82f6"},
	}))

	teamRepo := repositories.NewJSONTeamRepository(store)
	userRepo := repositories.NewJSONUserRepository(store)
	notificationRepo := repositories.NewJSONNotificationRepository(store)

	hub := realtime.NewHub(logger)
	go hub.Run()
	dispatcher := services.NewDispatcher(hub, notificationRepo, logger)

	auth := middleware.NewAuthenticator(testSecret)
	teamHandler := handlers.NewTeamHandler(services.NewTeamService(teamRepo, userRepo, dispatcher, logger))
	notificationHandler := handlers.NewNotificationHandler(services.NewNotificationService(notificationRepo))
	userHandler := handlers.NewUserHandler(services.NewUserService(userRepo))
	webSocketHandler := handlers.NewWebSocketHandler(hub, auth, logger)

	router := chi.NewRouter()
	routes.SetupRoutes(router, auth, teamHandler, notificationHandler, userHandler, webSocketHandler, []string{"*"})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{server: srv}
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, userID string, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, userID))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	fields := map[string]json.RawMessage{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &fields))
	}
	return resp, fields
}

func (ts *testServer) createTeam(t *testing.T, userID, name, contestID string) *models.Team {
	t.Helper()
	resp, fields := ts.do(t, http.MethodPost, "/api/teams", userID, map[string]interface{}{
		"name": name, "contestId": contestID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var team models.Team
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &team))
	return &team
}

func decodeTeam(t *testing.T, raw json.RawMessage) *models.Team {
	t.Helper()
	var team models.Team
	require.NoError(t, json.Unmarshal(raw, &team))
	return &team
}

func TestCreateTeamEndpoint(t *testing.T) {
	ts := newTestServer(t)

	team := ts.createTeam(t, "u1", "Les Tireurs", "c1")
	assert.Equal(t, "u1", team.CaptainID)
	assert.Equal(t, []string{"u1"}, team.Members)
	assert.Equal(t, models.TeamStatusPending, team.Status)
	require.Len(t, team.MemberDetails, 1)
	assert.Equal(t, "Marcel", team.MemberDetails[0].Pseudo)
}

func TestCreateTeamRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodPost, "/api/teams", "", map[string]interface{}{
		"name": "X", "contestId": "c1",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateTeamRejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.server.URL+"/api/teams", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "u1"))

	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetMissingTeamReturns404(t *testing.T) {
	ts := newTestServer(t)

	resp, fields := ts.do(t, http.MethodGet, "/api/teams/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(fields["message"]), "not found")
}

func TestListTeamsVisibilityOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	ts.createTeam(t, "u1", "Publique", "c1")
	resp, _ := ts.do(t, http.MethodPost, "/api/teams", "u2", map[string]interface{}{
		"name": "Privee", "contestId": "c1", "isPublic": false,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var list []*models.Team
	getList := func(userID string) []*models.Team {
		req, err := http.NewRequest(http.MethodGet, ts.server.URL+"/api/teams?contestId=c1", nil)
		require.NoError(t, err)
		if userID != "" {
			req.Header.Set("Authorization", "Bearer "+signToken(t, userID))
		}
		resp, err := ts.server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list = nil
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		return list
	}

	assert.Len(t, getList(""), 1, "anonymous sees public teams only")
	assert.Len(t, getList("u2"), 2, "the captain sees their private team")
}

func TestJoinAcceptFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	team := ts.createTeam(t, "u1", "Les Tireurs", "c1")

	resp, fields := ts.do(t, http.MethodPost, fmt.Sprintf("/api/teams/%s/join-request", team.ID), "u2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeTeam(t, fields["team"])
	require.Len(t, updated.JoinRequests, 1)
	assert.Equal(t, "Jean Fanny", updated.JoinRequests[0].UserName)

	resp, fields = ts.do(t, http.MethodPost, fmt.Sprintf("/api/teams/%s/accept", team.ID), "u1",
		map[string]string{"userId": "u2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated = decodeTeam(t, fields["team"])
	assert.Equal(t, []string{"u1", "u2"}, updated.Members)
	assert.Empty(t, updated.JoinRequests)

	// The captain got a durable notification for the join request.
	resp, _ = ts.do(t, http.MethodGet, "/api/notifications", "u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAcceptByNonCaptainReturns403(t *testing.T) {
	ts := newTestServer(t)

	team := ts.createTeam(t, "u1", "Les Tireurs", "c1")
	resp, _ := ts.do(t, http.MethodPost, fmt.Sprintf("/api/teams/%s/join-request", team.ID), "u2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, fmt.Sprintf("/api/teams/%s/accept", team.ID), "u2",
		map[string]string{"userId": "u2"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAcceptMissingRequestReturns404(t *testing.T) {
	ts := newTestServer(t)

	team := ts.createTeam(t, "u1", "Les Tireurs", "c1")
	resp, _ := ts.do(t, http.MethodPost, fmt.Sprintf("/api/teams/%s/accept", team.ID), "u1",
		map[string]string{"userId": "u3"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLeaveLastMemberOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	team := ts.createTeam(t, "u1", "Solo", "c1")
	resp, fields := ts.do(t, http.MethodPost, fmt.Sprintf("/api/teams/%s/leave", team.ID), "u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"c1"`, string(fields["contestId"]))
	assert.NotContains(t, fields, "team")

	resp, _ = ts.do(t, http.MethodGet, "/api/teams/"+team.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateTeamRequiresFields(t *testing.T) {
	ts := newTestServer(t)

	team := ts.createTeam(t, "u1", "Les Tireurs", "c1")
	resp, _ := ts.do(t, http.MethodPut, "/api/teams/"+team.ID, "u1", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, fields := ts.do(t, http.MethodPut, "/api/teams/"+team.ID, "u1",
		map[string]interface{}{"name": "Les Pointeurs"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Les Pointeurs", decodeTeam(t, fields["team"]).Name)
}

func TestDeleteTeamOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	team := ts.createTeam(t, "u1", "Les Tireurs", "c1")

	resp, _ := ts.do(t, http.MethodDelete, "/api/teams/"+team.ID, "u2", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, "/api/teams/"+team.ID, "u1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetUserOmitsEmail(t *testing.T) {
	ts := newTestServer(t)

	resp, fields := ts.do(t, http.MethodGet, "/api/users/u1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, fields, "email")
	assert.Equal(t, `"Marcel"`, string(fields["pseudo"]))
}
