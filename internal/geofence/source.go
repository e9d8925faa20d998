package geofence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// Source fetches the geofences of one organization
type Source interface {
	Fetch(ctx context.Context, organizationID string) ([]models.Geofence, error)
}

// HTTPSource reads geofences from a reference-data service:
// GET {baseURL}/organizations/{id}/geofences returning {"geofences": [...]}
type HTTPSource struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPSource creates an HTTP geofence source
func NewHTTPSource(baseURL, token string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch calls the reference-data service once
func (s *HTTPSource) Fetch(ctx context.Context, organizationID string) ([]models.Geofence, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("geofence service URL not configured")
	}
	endpoint, err := s.resolve(organizationID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geofence request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geofence request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("geofence service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Geofences []models.Geofence `json:"geofences"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode geofences: %w", err)
	}
	for i := range payload.Geofences {
		if payload.Geofences[i].OrganizationID == "" {
			payload.Geofences[i].OrganizationID = organizationID
		}
	}
	return payload.Geofences, nil
}

func (s *HTTPSource) resolve(organizationID string) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid geofence service URL: %w", err)
	}
	u.Path = path.Join(u.Path, "organizations", url.PathEscape(organizationID), "geofences")
	return u.String(), nil
}

// fileDocument is the layout of a geofence YAML file
type fileDocument struct {
	Organizations map[string][]models.Geofence `yaml:"organizations"`
}

// FileSource reads geofences from a YAML file keyed by organization.
// The file is re-read on every fetch so edits are picked up between batches.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Fetch(ctx context.Context, organizationID string) ([]models.Geofence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geofence file: %w", err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse geofence file: %w", err)
	}

	fences := doc.Organizations[organizationID]
	for i := range fences {
		fences[i].OrganizationID = organizationID
	}
	return fences, nil
}

// StaticSource serves a fixed list, filtered by organization
type StaticSource []models.Geofence

func (s StaticSource) Fetch(_ context.Context, organizationID string) ([]models.Geofence, error) {
	var out []models.Geofence
	for _, f := range s {
		if f.OrganizationID == organizationID {
			out = append(out, f)
		}
	}
	return out, nil
}
