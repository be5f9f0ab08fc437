package api

import (
	"context"
	"fmt"
	"net/url"
)

// Profile is the backend's representation of the current user.  The client
// treats it as passthrough data; the backend owns the shape.
type Profile map[string]interface{}

// Credentials is a local username/password login request.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body of a successful POST /auth/login.
type LoginResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type,omitempty"`
	User        Profile `json:"user"`
}

// Registration is a new account request.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

// Endpoints groups the backend's resource endpoints by area, mirroring the
// backend's route layout.
type Endpoints struct {
	Auth        *AuthEndpoints
	Users       *UserEndpoints
	APIKeys     *APIKeyEndpoints
	Topics      *TopicEndpoints
	Characters  *CharacterEndpoints
	Discussions *DiscussionEndpoints
	Reports     *ReportEndpoints
}

// NewEndpoints creates the endpoint catalog over client.
func NewEndpoints(client *Client) (*Endpoints, error) {
	const op = "api.NewEndpoints"
	if client == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	return &Endpoints{
		Auth:        &AuthEndpoints{client: client},
		Users:       &UserEndpoints{client: client},
		APIKeys:     &APIKeyEndpoints{client: client},
		Topics:      &TopicEndpoints{client: client},
		Characters:  &CharacterEndpoints{client: client},
		Discussions: &DiscussionEndpoints{client: client},
		Reports:     &ReportEndpoints{client: client},
	}, nil
}

// AuthEndpoints covers /auth.
type AuthEndpoints struct {
	client *Client
}

func (e *AuthEndpoints) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	var resp LoginResponse
	if err := e.client.Post(ctx, "/auth/login", creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (e *AuthEndpoints) Register(ctx context.Context, reg Registration) (Profile, error) {
	var resp Profile
	if err := e.client.Post(ctx, "/auth/register", reg, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *AuthEndpoints) Logout(ctx context.Context) error {
	return e.client.Post(ctx, "/auth/logout", nil, nil)
}

func (e *AuthEndpoints) Me(ctx context.Context) (Profile, error) {
	var resp Profile
	if err := e.client.Get(ctx, "/auth/me", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// UserEndpoints covers /users.
type UserEndpoints struct {
	client *Client
}

func (e *UserEndpoints) Me(ctx context.Context) (Profile, error) {
	var resp Profile
	if err := e.client.Get(ctx, "/users/me", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *UserEndpoints) UpdateMe(ctx context.Context, patch map[string]interface{}) (Profile, error) {
	var resp Profile
	if err := e.client.Patch(ctx, "/users/me", patch, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *UserEndpoints) DeleteMe(ctx context.Context) error {
	return e.client.Delete(ctx, "/users/me")
}

// APIKeyEndpoints covers /users/me/api-keys.
type APIKeyEndpoints struct {
	client *Client
}

func (e *APIKeyEndpoints) List(ctx context.Context, out interface{}) error {
	return e.client.Get(ctx, "/users/me/api-keys", out)
}

func (e *APIKeyEndpoints) Create(ctx context.Context, in, out interface{}) error {
	return e.client.Post(ctx, "/users/me/api-keys", in, out)
}

func (e *APIKeyEndpoints) Get(ctx context.Context, id string, out interface{}) error {
	return e.client.Get(ctx, "/users/me/api-keys/"+url.PathEscape(id), out)
}

func (e *APIKeyEndpoints) Update(ctx context.Context, id string, in, out interface{}) error {
	return e.client.Patch(ctx, "/users/me/api-keys/"+url.PathEscape(id), in, out)
}

func (e *APIKeyEndpoints) Delete(ctx context.Context, id string) error {
	return e.client.Delete(ctx, "/users/me/api-keys/"+url.PathEscape(id))
}

// TopicEndpoints covers /topics.
type TopicEndpoints struct {
	client *Client
}

func (e *TopicEndpoints) List(ctx context.Context, out interface{}) error {
	return e.client.Get(ctx, "/topics", out)
}

func (e *TopicEndpoints) Create(ctx context.Context, in, out interface{}) error {
	return e.client.Post(ctx, "/topics", in, out)
}

func (e *TopicEndpoints) Get(ctx context.Context, id string, out interface{}) error {
	return e.client.Get(ctx, "/topics/"+url.PathEscape(id), out)
}

func (e *TopicEndpoints) Update(ctx context.Context, id string, in, out interface{}) error {
	return e.client.Patch(ctx, "/topics/"+url.PathEscape(id), in, out)
}

func (e *TopicEndpoints) Delete(ctx context.Context, id string) error {
	return e.client.Delete(ctx, "/topics/"+url.PathEscape(id))
}

func (e *TopicEndpoints) Search(ctx context.Context, query string, out interface{}) error {
	return e.client.Get(ctx, "/topics/search?query="+url.QueryEscape(query), out)
}

// CharacterEndpoints covers /characters.
type CharacterEndpoints struct {
	client *Client
}

func (e *CharacterEndpoints) Templates(ctx context.Context, out interface{}) error {
	return e.client.Get(ctx, "/characters/templates", out)
}

func (e *CharacterEndpoints) Template(ctx context.Context, id string, out interface{}) error {
	return e.client.Get(ctx, "/characters/templates/"+url.PathEscape(id), out)
}

func (e *CharacterEndpoints) List(ctx context.Context, out interface{}) error {
	return e.client.Get(ctx, "/characters", out)
}

func (e *CharacterEndpoints) Get(ctx context.Context, id string, out interface{}) error {
	return e.client.Get(ctx, "/characters/"+url.PathEscape(id), out)
}

func (e *CharacterEndpoints) Create(ctx context.Context, in, out interface{}) error {
	return e.client.Post(ctx, "/characters", in, out)
}

func (e *CharacterEndpoints) Update(ctx context.Context, id string, in, out interface{}) error {
	return e.client.Patch(ctx, "/characters/"+url.PathEscape(id), in, out)
}

func (e *CharacterEndpoints) Delete(ctx context.Context, id string) error {
	return e.client.Delete(ctx, "/characters/"+url.PathEscape(id))
}

// DiscussionEndpoints covers /discussions.
type DiscussionEndpoints struct {
	client *Client
}

func (e *DiscussionEndpoints) List(ctx context.Context, out interface{}) error {
	return e.client.Get(ctx, "/discussions", out)
}

func (e *DiscussionEndpoints) Create(ctx context.Context, in, out interface{}) error {
	return e.client.Post(ctx, "/discussions", in, out)
}

func (e *DiscussionEndpoints) Get(ctx context.Context, id string, out interface{}) error {
	return e.client.Get(ctx, "/discussions/"+url.PathEscape(id), out)
}

func (e *DiscussionEndpoints) Delete(ctx context.Context, id string) error {
	return e.client.Delete(ctx, "/discussions/"+url.PathEscape(id))
}

func (e *DiscussionEndpoints) Start(ctx context.Context, id string) error {
	return e.client.Post(ctx, "/discussions/"+url.PathEscape(id)+"/start", nil, nil)
}

func (e *DiscussionEndpoints) Pause(ctx context.Context, id string) error {
	return e.client.Post(ctx, "/discussions/"+url.PathEscape(id)+"/pause", nil, nil)
}

func (e *DiscussionEndpoints) Resume(ctx context.Context, id string) error {
	return e.client.Post(ctx, "/discussions/"+url.PathEscape(id)+"/resume", nil, nil)
}

func (e *DiscussionEndpoints) Stop(ctx context.Context, id string) error {
	return e.client.Post(ctx, "/discussions/"+url.PathEscape(id)+"/stop", nil, nil)
}

func (e *DiscussionEndpoints) Messages(ctx context.Context, id string, out interface{}) error {
	return e.client.Get(ctx, "/discussions/"+url.PathEscape(id)+"/messages", out)
}

// ReportEndpoints covers /reports.
type ReportEndpoints struct {
	client *Client
}

func (e *ReportEndpoints) Get(ctx context.Context, id string, out interface{}) error {
	return e.client.Get(ctx, "/reports/"+url.PathEscape(id), out)
}

func (e *ReportEndpoints) ByDiscussion(ctx context.Context, discussionID string, out interface{}) error {
	return e.client.Get(ctx, "/reports/discussions/"+url.PathEscape(discussionID), out)
}

func (e *ReportEndpoints) Regenerate(ctx context.Context, discussionID string) error {
	return e.client.Post(ctx, "/reports/discussions/"+url.PathEscape(discussionID)+"/regenerate", nil, nil)
}
