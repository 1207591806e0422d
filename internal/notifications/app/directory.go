package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crewsite/notifications/internal/notifications/fanout"
)

// ErrDirectoryUnavailable indicates the directory service rejected or
// failed a lookup.
var ErrDirectoryUnavailable = errors.New("directory lookup failed")

const directoryRequestTimeout = 5 * time.Second

// HTTPDirectory resolves users and project teams from the directory
// service owned by the core platform.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory builds a directory client for the given base URL.
func NewHTTPDirectory(baseURL string, client *http.Client) (*HTTPDirectory, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("directory base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: directoryRequestTimeout}
	}
	return &HTTPDirectory{baseURL: baseURL, client: client}, nil
}

type directoryUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type directoryTeam struct {
	ManagerID    string `json:"manager_id"`
	SupervisorID string `json:"supervisor_id"`
}

// EmailAddress resolves one user's deliverable address.
func (d *HTTPDirectory) EmailAddress(ctx context.Context, userID string) (string, error) {
	user, err := d.user(ctx, userID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(user.Email) == "" {
		return "", fmt.Errorf("%w: user %s has no email", ErrDirectoryUnavailable, userID)
	}
	return user.Email, nil
}

// Name resolves one user's display name.
func (d *HTTPDirectory) Name(ctx context.Context, userID string) (string, error) {
	user, err := d.user(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Name, nil
}

// Role resolves one user's role name.
func (d *HTTPDirectory) Role(ctx context.Context, userID string) (string, error) {
	user, err := d.user(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// UsersWithRole lists the ids of every user holding the role.
func (d *HTTPDirectory) UsersWithRole(ctx context.Context, role string) ([]string, error) {
	endpoint := d.baseURL + "/api/users?role=" + url.QueryEscape(strings.TrimSpace(role))
	var users []directoryUser
	if err := d.getJSON(ctx, endpoint, &users); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.ID)
	}
	return ids, nil
}

// Team resolves the manager and supervisor for one project.
func (d *HTTPDirectory) Team(ctx context.Context, projectID string) (fanout.ProjectTeam, error) {
	endpoint := d.baseURL + "/api/projects/" + url.PathEscape(strings.TrimSpace(projectID)) + "/team"
	var team directoryTeam
	if err := d.getJSON(ctx, endpoint, &team); err != nil {
		return fanout.ProjectTeam{}, err
	}
	return fanout.ProjectTeam{ManagerID: team.ManagerID, SupervisorID: team.SupervisorID}, nil
}

func (d *HTTPDirectory) user(ctx context.Context, userID string) (directoryUser, error) {
	endpoint := d.baseURL + "/api/users/" + url.PathEscape(strings.TrimSpace(userID))
	var user directoryUser
	if err := d.getJSON(ctx, endpoint, &user); err != nil {
		return directoryUser{}, err
	}
	return user, nil
}

func (d *HTTPDirectory) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrDirectoryUnavailable, endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode directory response: %w", err)
	}
	return nil
}
