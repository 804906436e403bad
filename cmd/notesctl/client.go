package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voice-notes-go/internal/types"
)

// apiClient talks to the voice notes HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

type uploadResult struct {
	NoteID   string         `json:"note_id"`
	Status   string         `json:"status"`
	Progress types.Progress `json:"progress"`
}

type apiError struct {
	Message string `json:"message"`
}

// upload streams the file as multipart so large recordings are not buffered.
func (c *apiClient) upload(ctx context.Context, ownerID, path, language string) (uploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return uploadResult{}, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if language != "" {
				if err := mw.WriteField("language", language); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile("file", filepath.Base(path))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/notes/", pr)
	if err != nil {
		pr.Close()
		return uploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Owner-ID", ownerID)

	var out uploadResult
	if err := c.do(req, http.StatusAccepted, &out); err != nil {
		return uploadResult{}, err
	}
	return out, nil
}

func (c *apiClient) progress(ctx context.Context, ownerID, noteID string) (types.Progress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/notes/"+url.PathEscape(noteID)+"/progress", nil)
	if err != nil {
		return types.Progress{}, err
	}
	req.Header.Set("X-Owner-ID", ownerID)

	resp, err := c.http.Do(req)
	if err != nil {
		return types.Progress{}, err
	}
	defer resp.Body.Close()

	var p types.Progress
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound:
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return types.Progress{}, fmt.Errorf("decode progress: %w", err)
		}
		return p, nil
	default:
		return types.Progress{}, responseError(resp)
	}
}

func (c *apiClient) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e apiError
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Message)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
