package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"school-identity-onboarding/internal/config"
	"school-identity-onboarding/internal/listing"
	"school-identity-onboarding/internal/logger"
	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/pkg/errors"

	"github.com/rs/zerolog"
)

const maxErrorBody = 512

// Client talks to the Identity and Provisioning services. Only their
// request/response contracts are relied on.
type Client struct {
	cfg              *config.Config
	identityHTTP     *http.Client
	provisioningHTTP *http.Client
	log              zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg: cfg,
		identityHTTP: &http.Client{
			Timeout: cfg.ExternalAPI.Identity.Timeout,
		},
		provisioningHTTP: &http.Client{
			Timeout: cfg.ExternalAPI.Provisioning.Timeout,
		},
		log: logger.Component("identity-client"),
	}
}

// SubmitBulkImport uploads an import file and returns the new identity batch id.
func (c *Client) SubmitBulkImport(ctx context.Context, file model.ImportFile, establishmentID string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.WriteField("establishment_id", establishmentID); err != nil {
		return "", fmt.Errorf("failed to write form field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	c.log.Debug().
		Str("file", file.Name).
		Int("bytes", len(file.Data)).
		Str("establishment_id", establishmentID).
		Msg("Submitting bulk import")

	data, _, err := c.do(ctx, c.identityHTTP, c.cfg.ExternalAPI.Identity.Token, http.MethodPost,
		c.identityURL(c.cfg.ExternalAPI.Identity.ImportEndpoint, nil), writer.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	return extractBatchID(data)
}

func (c *Client) CommitImportBatch(ctx context.Context, batchID string) error {
	_, _, err := c.do(ctx, c.identityHTTP, c.cfg.ExternalAPI.Identity.Token, http.MethodPost,
		c.identityURL(path.Join(c.cfg.ExternalAPI.Identity.BatchEndpoint, url.PathEscape(batchID), "commit"), nil), "", nil)
	return err
}

func (c *Client) GetBatchStatus(ctx context.Context, batchID string) (model.ProgressSnapshot, error) {
	data, _, err := c.do(ctx, c.identityHTTP, c.cfg.ExternalAPI.Identity.Token, http.MethodGet,
		c.identityURL(path.Join(c.cfg.ExternalAPI.Identity.BatchEndpoint, url.PathEscape(batchID)), nil), "", nil)
	if err != nil {
		return model.ProgressSnapshot{}, err
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return model.ProgressSnapshot{}, err
	}
	if snap.BatchID == "" {
		snap.BatchID = batchID
	}
	return snap, nil
}

// ListBatchItems returns the raw list payload; callers normalize it.
func (c *Client) ListBatchItems(ctx context.Context, batchID string, status string, page, size int) ([]byte, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))

	data, _, err := c.do(ctx, c.identityHTTP, c.cfg.ExternalAPI.Identity.Token, http.MethodGet,
		c.identityURL(path.Join(c.cfg.ExternalAPI.Identity.BatchEndpoint, url.PathEscape(batchID), "items"), query), "", nil)
	return data, err
}

func (c *Client) ListBatchErrors(ctx context.Context, batchID string, errorType string, page, size int) ([]byte, error) {
	query := url.Values{}
	if errorType != "" {
		query.Set("error_type", errorType)
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))

	data, _, err := c.do(ctx, c.identityHTTP, c.cfg.ExternalAPI.Identity.Token, http.MethodGet,
		c.identityURL(path.Join(c.cfg.ExternalAPI.Identity.BatchEndpoint, url.PathEscape(batchID), "errors"), query), "", nil)
	return data, err
}

// CountBatchItems asks for a single-item page filtered by status and reads
// the total, so counts do not depend on the page being displayed.
func (c *Client) CountBatchItems(ctx context.Context, batchID string, status model.ItemStatus) (int, error) {
	data, err := c.ListBatchItems(ctx, batchID, string(status), 1, 1)
	if err != nil {
		return 0, err
	}
	page := listing.Normalize[json.RawMessage](data)
	return page.Total, nil
}

func (c *Client) CreateProvisioningBatch(ctx context.Context, sourceIdentityBatchID string) (string, error) {
	payload, err := json.Marshal(map[string]string{"source_identity_batch_id": sourceIdentityBatchID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	data, _, err := c.do(ctx, c.provisioningHTTP, c.cfg.ExternalAPI.Provisioning.Token, http.MethodPost,
		c.provisioningURL(c.cfg.ExternalAPI.Provisioning.BatchEndpoint, nil), "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	return extractBatchID(data)
}

func (c *Client) RunProvisioningBatch(ctx context.Context, batchID string) error {
	_, _, err := c.do(ctx, c.provisioningHTTP, c.cfg.ExternalAPI.Provisioning.Token, http.MethodPost,
		c.provisioningURL(path.Join(c.cfg.ExternalAPI.Provisioning.BatchEndpoint, url.PathEscape(batchID), "run"), nil), "", nil)
	return err
}

func (c *Client) ListProvisioningItems(ctx context.Context, batchID string, skip, limit int) ([]byte, error) {
	query := url.Values{}
	query.Set("skip", strconv.Itoa(skip))
	query.Set("limit", strconv.Itoa(limit))

	data, _, err := c.do(ctx, c.provisioningHTTP, c.cfg.ExternalAPI.Provisioning.Token, http.MethodGet,
		c.provisioningURL(path.Join(c.cfg.ExternalAPI.Provisioning.BatchEndpoint, url.PathEscape(batchID), "items"), query), "", nil)
	return data, err
}

// RemoteTemplate is a template file as served by the identity service.
type RemoteTemplate struct {
	Data               []byte
	ContentType        string
	ContentDisposition string
}

func (c *Client) FetchRemoteTemplate(ctx context.Context, role model.Role, format string) (*RemoteTemplate, error) {
	query := url.Values{}
	query.Set("format", format)

	data, header, err := c.do(ctx, c.identityHTTP, c.cfg.ExternalAPI.Identity.Token, http.MethodGet,
		c.identityURL(path.Join(c.cfg.ExternalAPI.Identity.TemplateEndpoint, url.PathEscape(role.String())), query), "", nil)
	if err != nil {
		return nil, err
	}
	return &RemoteTemplate{
		Data:               data,
		ContentType:        header.Get("Content-Type"),
		ContentDisposition: header.Get("Content-Disposition"),
	}, nil
}

func (c *Client) identityURL(p string, query url.Values) string {
	return buildURL(c.cfg.ExternalAPI.Identity.BaseURL, p, query)
}

func (c *Client) provisioningURL(p string, query url.Values) string {
	return buildURL(c.cfg.ExternalAPI.Provisioning.BaseURL, p, query)
}

func buildURL(base, p string, query url.Values) string {
	u := base + p
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, httpClient *http.Client, token, method, u, contentType string, body io.Reader) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Remote call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, nil, errors.APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	return data, resp.Header, nil
}
