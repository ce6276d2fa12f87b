//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UserResponse mirrors the API's public user view.
type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LoginResponse mirrors the API's login response.
type LoginResponse struct {
	Success   bool         `json:"success"`
	User      UserResponse `json:"user"`
	CSRFToken string       `json:"csrf_token"`
}

// ChannelResponse mirrors the API's channel representation.
type ChannelResponse struct {
	ID        string `json:"id"`
	TeamID    string `json:"team_id"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
}

// MessageResponse mirrors the API's message representation.
type MessageResponse struct {
	ID        string `json:"id"`
	TempID    string `json:"temp_id,omitempty"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
	DeletedAt int64  `json:"deleted_at,omitempty"`
}

// WindowResponse mirrors the API's message window.
type WindowResponse struct {
	Messages      []MessageResponse `json:"messages"`
	Updated       []MessageResponse `json:"updated"`
	Deleted       []MessageResponse `json:"deleted"`
	Users         []UserResponse    `json:"users"`
	LastMessageAt *int64            `json:"last_message_at,omitempty"`
}

// TestClient is an HTTP client bound to a single user session. The session
// cookie lives in the jar; the CSRF token is replayed as a header on every
// state-changing request.
type TestClient struct {
	*http.Client
	t         *testing.T
	csrfToken string
	UserID    string
	Username  string
}

func NewTestClient(t *testing.T) *TestClient {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}

	return &TestClient{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		t: t,
	}
}

func (tc *TestClient) do(method, path string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", tc.csrfToken)
	}

	return tc.Do(req)
}

func (tc *TestClient) GetJSON(path string, out interface{}) error {
	resp, err := tc.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s failed with status %d: %s", path, resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (tc *TestClient) postJSON(method, path string, payload, out interface{}, wantStatus int) error {
	resp, err := tc.do(method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RegisterAndLogin registers a fresh user and logs in, capturing the session
// cookie and CSRF token.
func (tc *TestClient) RegisterAndLogin(username, password string) {
	tc.t.Helper()

	var user UserResponse
	err := tc.postJSON(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username":   username,
		"email":      username + "@example.com",
		"password":   password,
		"first_name": "Test",
		"last_name":  "User",
	}, &user, http.StatusCreated)
	if err != nil {
		tc.t.Fatalf("register failed: %v", err)
	}

	var login LoginResponse
	err = tc.postJSON(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &login, http.StatusOK)
	if err != nil {
		tc.t.Fatalf("login failed: %v", err)
	}

	tc.csrfToken = login.CSRFToken
	tc.UserID = login.User.ID
	tc.Username = login.User.Username
}

// CreateChannel creates a channel in teamID and returns it.
func (tc *TestClient) CreateChannel(teamID, name string) ChannelResponse {
	tc.t.Helper()

	var channel ChannelResponse
	err := tc.postJSON(http.MethodPost, "/api/v1/channels", map[string]string{
		"team_id": teamID,
		"name":    name,
	}, &channel, http.StatusCreated)
	if err != nil {
		tc.t.Fatalf("create channel failed: %v", err)
	}
	return channel
}

// JoinChannel adds the client's user to a channel.
func (tc *TestClient) JoinChannel(channelID string) {
	tc.t.Helper()

	err := tc.postJSON(http.MethodPost, "/api/v1/channels/"+channelID+"/join", nil, nil, http.StatusOK)
	if err != nil {
		tc.t.Fatalf("join channel failed: %v", err)
	}
}

// PostMessage posts a text message and returns the created message.
func (tc *TestClient) PostMessage(channelID, text string) MessageResponse {
	tc.t.Helper()

	var msg MessageResponse
	err := tc.postJSON(http.MethodPost, "/api/v1/channels/"+channelID+"/messages", map[string]string{
		"text": text,
	}, &msg, http.StatusCreated)
	if err != nil {
		tc.t.Fatalf("post message failed: %v", err)
	}
	return msg
}

// FetchWindow retrieves a message window with the given query string.
func (tc *TestClient) FetchWindow(channelID, query string) WindowResponse {
	tc.t.Helper()

	var window WindowResponse
	if err := tc.GetJSON("/api/v1/channels/"+channelID+"/messages"+query, &window); err != nil {
		tc.t.Fatalf("fetch window failed: %v", err)
	}
	return window
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

// grantTeamRole seeds a team role carrying the given permissions and assigns
// it to the user. Role management has no HTTP surface, so tests write the
// rows directly.
func grantTeamRole(t *testing.T, teamID, userID string, isOwner bool, permissions ...string) {
	t.Helper()

	roleID := uuid.New().String()
	_, err := testDB.Exec(`
		INSERT INTO team_roles (id, team_id, name, is_owner, permissions)
		VALUES ($1, $2, $3, $4, $5)
	`, roleID, teamID, "e2e-role", isOwner, pq.Array(permissions))
	if err != nil {
		t.Fatalf("failed to seed team role: %v", err)
	}

	_, err = testDB.Exec(`
		INSERT INTO team_member_roles (team_id, user_id, role_id)
		VALUES ($1, $2, $3)
	`, teamID, userID, roleID)
	if err != nil {
		t.Fatalf("failed to assign team role: %v", err)
	}
}
