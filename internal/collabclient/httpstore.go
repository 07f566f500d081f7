package collabclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"drawboard/internal/errs"
	"drawboard/internal/repository"
)

// HTTPStore is the drawing store reached through the REST API.
type HTTPStore struct {
	baseURL    string
	token      string
	shareToken string
	timeout    time.Duration
	client     *fiber.Client
}

var _ repository.DrawingRepository = (*HTTPStore)(nil)

// NewHTTPStore baseURL is the server root (e.g. http://localhost:8080).
// token is sent as a bearer credential and shareToken as the share query
// parameter; either may be empty.
func NewHTTPStore(baseURL, token, shareToken string) *HTTPStore {
	return &HTTPStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		shareToken: shareToken,
		timeout:    10 * time.Second,
		client: &fiber.Client{
			UserAgent:   "drawboard-collab",
			JSONEncoder: json.Marshal,
			JSONDecoder: json.Unmarshal,
		},
	}
}

func (s *HTTPStore) drawingURL(id string) string {
	u := fmt.Sprintf("%s/api/drawings/%s", s.baseURL, url.PathEscape(id))
	if s.shareToken != "" {
		u += "?share=" + url.QueryEscape(s.shareToken)
	}
	return u
}

func (s *HTTPStore) prepare(ctx context.Context, a *fiber.Agent) *fiber.Agent {
	if s.token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+s.token)
	}
	timeout := s.timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = max(d, time.Millisecond)
		}
	}
	return a.Timeout(timeout)
}

func (s *HTTPStore) do(ctx context.Context, a *fiber.Agent, dst any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	code, body, errList := s.prepare(ctx, a).Bytes()
	if len(errList) > 0 {
		return fmt.Errorf("drawing store: %w", errList[0])
	}

	switch {
	case code == fiber.StatusNotFound:
		return errs.ErrNotFound
	case code == fiber.StatusUnauthorized:
		return errs.ErrUnauthorized
	case code == fiber.StatusForbidden:
		return errs.ErrForbidden
	case code >= 400:
		return fmt.Errorf("drawing store: status %d: %s", code, body)
	}

	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("drawing store: decode: %w", err)
	}
	return nil
}

func (s *HTTPStore) Create(ctx context.Context, d *repository.Drawing) (*repository.Drawing, error) {
	var out repository.Drawing
	a := s.client.Post(s.baseURL + "/api/drawings").JSON(d)
	if err := s.do(ctx, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *HTTPStore) Get(ctx context.Context, id string) (*repository.Drawing, error) {
	var out repository.Drawing
	if err := s.do(ctx, s.client.Get(s.drawingURL(id)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *HTTPStore) Update(ctx context.Context, id string, patch repository.Patch) (*repository.Drawing, error) {
	var out repository.Drawing
	a := s.client.Put(s.drawingURL(id)).JSON(patch)
	if err := s.do(ctx, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByOwner lists the drawings of the token's user; ownerID must match it.
func (s *HTTPStore) ListByOwner(ctx context.Context, _ int64) ([]repository.Drawing, error) {
	var out []repository.Drawing
	if err := s.do(ctx, s.client.Get(s.baseURL+"/api/drawings"), &out); err != nil {
		return nil, err
	}
	return out, nil
}
