package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"storefront-client/internal/models"
)

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type userResponse struct {
	User *models.User `json:"user"`
}

// Login authenticates against the user or admin login endpoint.
func (c *Client) Login(ctx context.Context, email, password, accountType string) (*AuthResponse, error) {
	path := "/auth/login"
	if accountType == models.RoleAdmin {
		path = "/auth/admin/login"
	}

	var out AuthResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   path,
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "login response missing token"}
	}
	return &out, nil
}

// Register creates an account and returns its first session.
func (c *Client) Register(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/register",
		body:   map[string]string{"name": name, "email": email, "password": password},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "register response missing token"}
	}
	return &out, nil
}

// UpdateProfile sends a partial user update and returns the server's user
// document undecoded so the caller can merge only the fields it contains.
func (c *Client) UpdateProfile(ctx context.Context, token string, updates map[string]interface{}) (json.RawMessage, error) {
	var out struct {
		User json.RawMessage `json:"user"`
	}
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/profile",
		token:  token,
		body:   updates,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.User) == 0 || string(out.User) == "null" {
		return nil, fmt.Errorf("profile response missing user")
	}
	return out.User, nil
}

// UpdateProfilePicture uploads an image as the profilePicture form field.
func (c *Client) UpdateProfilePicture(ctx context.Context, token, filename string, image io.Reader) (*models.User, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("profilePicture", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("copying image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	var out userResponse
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/profile/picture",
		token:       token,
		rawBody:     &buf,
		contentType: mw.FormDataContentType(),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("profile picture response missing user")
	}
	return out.User, nil
}
