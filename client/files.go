package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/list-cutter/cutover/internal/models"
)

// UploadMetadata is the file metadata sent alongside the blob.
type UploadMetadata struct {
	FileName string
	UserID   string
	Checksum string
	Size     int64
}

// UploadResult is the destination's record of a stored object.
type UploadResult struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// ProbeResult is the outcome of a read-after-write existence check.
// Checksum may be empty when the destination cannot report one.
type ProbeResult struct {
	Exists   bool
	Size     int64
	Checksum string
}

// Upload PUTs a file's bytes and metadata to the destination and returns
// the opaque destination ref. The destination treats the file ID as the
// object identity, so replaying the call for the same ID is safe.
func (c *Client) Upload(ctx context.Context, fileID string, r io.Reader, meta UploadMetadata) (string, error) {
	if meta.Size > c.maxFileSize {
		return "", &models.PermanentError{
			Op:  "upload " + fileID,
			Err: fmt.Errorf("file size %d exceeds maximum %d", meta.Size, c.maxFileSize),
		}
	}

	u := c.baseURL + "/api/v1/files/" + url.PathEscape(fileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, r)
	if err != nil {
		return "", &models.PermanentError{Op: "upload " + fileID, Err: err}
	}

	req.ContentLength = meta.Size
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-File-Name", meta.FileName)
	req.Header.Set("X-User-Id", meta.UserID)
	req.Header.Set("X-Content-Checksum", meta.Checksum)
	c.authorize(req)

	resp, err := c.transferClient.Do(req)
	if err != nil {
		return "", classifyNetErr("upload "+fileID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &models.TransientError{Op: "upload " + fileID, Err: err}
	}

	if resp.StatusCode >= 400 {
		return "", classifyStatus("upload "+fileID, parseAPIError(resp.StatusCode, body))
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &models.TransientError{Op: "upload " + fileID, Err: fmt.Errorf("decode response: %w", err)}
	}

	if result.Key == "" {
		return "", &models.TransientError{Op: "upload " + fileID, Err: fmt.Errorf("destination returned no object key")}
	}

	return result.Key, nil
}

// ConfirmAccessible HEADs the destination object. A 404 is not an error;
// it reports Exists=false so callers can distinguish absence from outage.
func (c *Client) ConfirmAccessible(ctx context.Context, ref string) (ProbeResult, error) {
	u := c.baseURL + "/api/v1/files/" + escapeRef(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, http.NoBody)
	if err != nil {
		return ProbeResult{}, &models.PermanentError{Op: "confirm " + ref, Err: err}
	}

	c.authorize(req)

	resp, err := c.probeClient.Do(req)
	if err != nil {
		return ProbeResult{}, classifyNetErr("confirm "+ref, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // HEAD bodies are empty.

	if resp.StatusCode == http.StatusNotFound {
		return ProbeResult{Exists: false}, nil
	}

	if resp.StatusCode >= 400 {
		return ProbeResult{}, classifyStatus("confirm "+ref, &APIError{StatusCode: resp.StatusCode, Code: "probe_failed", Message: resp.Status})
	}

	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64) //nolint:errcheck // absent header means size 0.

	return ProbeResult{
		Exists:   true,
		Size:     size,
		Checksum: resp.Header.Get("X-Content-Checksum"),
	}, nil
}

// Delete removes the destination object. Used by rollback; callers treat
// failures as best-effort.
func (c *Client) Delete(ctx context.Context, ref string) error {
	u := c.baseURL + "/api/v1/files/" + escapeRef(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, http.NoBody)
	if err != nil {
		return &models.PermanentError{Op: "delete " + ref, Err: err}
	}

	c.authorize(req)

	resp, err := c.probeClient.Do(req)
	if err != nil {
		return classifyNetErr("delete "+ref, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body) //nolint:errcheck // body only used for error context.

	// Deleting an already-deleted object is success for rollback purposes.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode < 400 {
		return nil
	}

	return classifyStatus("delete "+ref, parseAPIError(resp.StatusCode, body))
}

// escapeRef escapes each path segment of a destination ref, which is an
// object key that may contain slashes (e.g. "migrated/42/abc/report.csv").
func escapeRef(ref string) string {
	segs := strings.Split(ref, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}

	return strings.Join(segs, "/")
}
