package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/idempotency"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
)

// StatusError is a non-2xx answer from the domain API.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// APIClient submits queued mutations to the domain API with Bearer auth.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewAPIClient(baseURL, token string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Submit sends m once with its id as the Idempotency-Key. Only a 2xx
// answer counts as applied.
func (c *APIClient) Submit(ctx context.Context, m *model.OfflineMutation) error {
	switch p := m.Payload.(type) {
	case *model.JobCreatePayload:
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		return c.post(ctx, m.ID, "/api/v1/jobs", "application/json", body)

	case *model.PhotoUploadPayload:
		body, contentType, err := photoForm(p)
		if err != nil {
			return fmt.Errorf("building photo form: %w", err)
		}
		return c.post(ctx, m.ID, "/api/v1/jobs/"+url.PathEscape(p.JobID)+"/photos", contentType, body)

	default:
		return fmt.Errorf("unsupported mutation kind %q", m.Kind)
	}
}

func (c *APIClient) post(ctx context.Context, key, path, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(idempotency.Header, key)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		Method: http.MethodPost,
		Path:   path,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(respBody)),
	}
}

func photoForm(p *model.PhotoUploadPayload) ([]byte, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if p.Caption != "" {
		if err := form.WriteField("caption", p.Caption); err != nil {
			return nil, "", err
		}
	}
	if err := form.WriteField("taken_at", p.TakenAt.UTC().Format(time.RFC3339)); err != nil {
		return nil, "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, p.FileName))
	header.Set("Content-Type", p.ContentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(p.Data); err != nil {
		return nil, "", err
	}

	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), form.FormDataContentType(), nil
}

// HTTPProbe reports the device online when the API health endpoint answers
// 200 within the timeout.
type HTTPProbe struct {
	url        string
	httpClient *http.Client
}

func NewHTTPProbe(baseURL string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		url:        strings.TrimRight(baseURL, "/") + "/health",
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}
