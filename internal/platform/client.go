// Package platform adapts the document-management platform's REST API: a
// single base URL plus JSESSIONID-cookie authentication, exposing folders,
// information-object versions, and file blobs.
package platform

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ragqa/internal/errs"
)

const apiPath = "/siu-star/services/api"

// ObjectVersion is the normalized subset of an information-object version's
// fields the core consumes.
type ObjectVersion struct {
	ID          string
	Name        string
	Description string
	ParentID    string
	NamingAuth  string
	Files       []FileDescriptor
}

// FileDescriptor identifies one file attached to an object version.
type FileDescriptor struct {
	ID   string `json:"irvfId"`
	Name string `json:"name"`
}

// Client talks to one platform deployment on behalf of one authenticated
// user session.
type Client struct {
	apiBase    string
	jsessionID string
	http       *http.Client
}

// New builds a Client. referer is the inbound request's Referer header (the
// platform's base URL); jsessionID is extracted from the inbound request's
// JSESSIONID cookie. Both are required by the platform's session model.
func New(referer, jsessionID string, timeout time.Duration) (*Client, error) {
	referer = strings.TrimSpace(referer)
	if referer == "" {
		return nil, errs.New(errs.KindMissingReferer, "referer header is required to reach the document platform")
	}
	jsessionID = strings.TrimSpace(jsessionID)
	if jsessionID == "" {
		return nil, errs.New(errs.KindMissingJSessionID, "JSESSIONID cookie is required to reach the document platform")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimSuffix(referer, "/")
	return &Client{
		apiBase:    base + apiPath,
		jsessionID: jsessionID,
		http:       &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, contentType string) ([]byte, error) {
	var reader io.Reader
	ct := contentType
	if body != nil {
		switch v := body.(type) {
		case []byte:
			reader = bytes.NewReader(v)
		case string:
			reader = strings.NewReader(v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, errs.Wrap(errs.KindInternalError, false, err)
			}
			reader = bytes.NewReader(b)
			if ct == "" {
				ct = "application/json;charset=utf-8"
			}
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternalError, false, err)
	}
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	req.AddCookie(&http.Cookie{Name: "JSESSIONID", Value: c.jsessionID})

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectionError, true, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectionError, true, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, errs.Wrap(errs.KindProviderError, resp.StatusCode >= 500, fmt.Errorf("platform returned %d: %s", resp.StatusCode, truncate(respBody, 300)))
	}
	return respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

// GetCurrentUser resolves the identity behind the session cookie.
func (c *Client) GetCurrentUser(ctx context.Context) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "/user/current", nil, "")
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errs.Wrap(errs.KindInternalError, false, err)
	}
	return out, nil
}

type getObjectOptions struct {
	WithMeta  bool `json:"withMeta"`
	WithFiles bool `json:"withFiles"`
}

// GetObjectVersion fetches one information-object version's normalized
// metadata, optionally including its attached files.
func (c *Client) GetObjectVersion(ctx context.Context, id string, withMeta, withFiles bool) (ObjectVersion, error) {
	body, err := c.do(ctx, http.MethodPost, "/irv/"+url.PathEscape(id), getObjectOptions{WithMeta: withMeta, WithFiles: withFiles}, "")
	if err != nil {
		return ObjectVersion{}, err
	}
	var raw struct {
		ID          string           `json:"id"`
		Name        string           `json:"name"`
		Description string           `json:"description"`
		ParentID    string           `json:"parentId"`
		NauID       string           `json:"nauId"`
		Files       []FileDescriptor `json:"files"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ObjectVersion{}, errs.Wrap(errs.KindInternalError, false, err)
	}
	return ObjectVersion{
		ID: raw.ID, Name: raw.Name, Description: raw.Description,
		ParentID: raw.ParentID, NamingAuth: raw.NauID, Files: raw.Files,
	}, nil
}

// GetObjectFiles lists the files attached to an information-object version.
func (c *Client) GetObjectFiles(ctx context.Context, id string) ([]FileDescriptor, error) {
	body, err := c.do(ctx, http.MethodGet, "/irv/"+url.PathEscape(id)+"/files", nil, "")
	if err != nil {
		return nil, err
	}
	var out []FileDescriptor
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errs.Wrap(errs.KindInternalError, false, err)
	}
	return out, nil
}

// GetFileContent reads the raw bytes of one attached file.
func (c *Client) GetFileContent(ctx context.Context, file FileDescriptor) ([]byte, error) {
	if file.ID == "" {
		return nil, errs.New(errs.KindValidation, "file descriptor is missing its id")
	}
	return c.do(ctx, http.MethodGet, "/file/"+url.PathEscape(file.ID)+"/read", nil, "")
}

// PutFileContent writes bytes (or a UTF-8 string) as the content of one
// attached file, stamping an MD5 checksum as the platform's write protocol
// requires.
func (c *Client) PutFileContent(ctx context.Context, file FileDescriptor, content []byte) error {
	if file.ID == "" {
		return errs.New(errs.KindValidation, "file descriptor is missing its id")
	}
	sum := md5.Sum(content)
	crc := hex.EncodeToString(sum[:])
	path := fmt.Sprintf("/file/%s/write?fileName=%s&crc=%s", url.PathEscape(file.ID), url.QueryEscape(file.Name), crc)
	_, err := c.do(ctx, http.MethodPost, path, content, "application/octet-stream")
	return err
}

// ListFolderChildren lists the direct children of a folder.
func (c *Client) ListFolderChildren(ctx context.Context, folderID string) ([]map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "/folder/"+url.PathEscape(folderID)+"/childs", nil, "")
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errs.Wrap(errs.KindInternalError, false, err)
	}
	return out, nil
}

// CreateFolder finds a child folder by name under parentID, creating it if
// absent.
func (c *Client) CreateFolder(ctx context.Context, name, parentID, description string) (map[string]any, error) {
	found, err := c.do(ctx, http.MethodPost, "/folder/"+url.PathEscape(parentID)+"/childs/find", map[string]any{"name": name}, "")
	if err == nil {
		var existing map[string]any
		if json.Unmarshal(found, &existing) == nil {
			if errMsg, _ := existing["error"].(string); !strings.Contains(errMsg, "not found") {
				return existing, nil
			}
		}
	}
	body := map[string]any{"name": name}
	if description != "" {
		body["description"] = description
	}
	created, err := c.do(ctx, http.MethodPost, "/folder/"+url.PathEscape(parentID)+"/childs", body, "")
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(created, &out); err != nil {
		return nil, errs.Wrap(errs.KindInternalError, false, err)
	}
	return out, nil
}

// CreateObjectRequest describes a new object version to create.
type CreateObjectRequest struct {
	Name           string
	ParentFolderID string
	NamingAuthID   string
	Description    string
	FileName       string
	ObjectID       string // when set, creates a new version of this existing object
}

// CreateObject creates an information-object version, either fresh or as a
// new version of an existing object (when ObjectID is set).
func (c *Client) CreateObject(ctx context.Context, req CreateObjectRequest) (map[string]any, error) {
	body := map[string]any{
		"name":        req.Name,
		"description": req.Description,
		"nauId":       req.NamingAuthID,
	}
	if req.FileName != "" {
		body["fileName"] = req.FileName
	}
	if req.ObjectID != "" {
		body["ioId"] = req.ObjectID
	}
	respBody, err := c.do(ctx, http.MethodPost, "/folder/"+url.PathEscape(req.ParentFolderID)+"/irvs", body, "")
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errs.Wrap(errs.KindInternalError, false, err)
	}
	return out, nil
}
