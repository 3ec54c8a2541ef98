package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrUpload = errors.New("upload failed")
	ErrSubmit = errors.New("detection request failed")
	ErrStatus = errors.New("status query failed")
)

// RemoteError carries the message the backend put in its {"error": ...} body.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Client talks to the detection backend: /upload, /detect and /status/{taskId}.
type Client struct {
	URL        string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		URL:        strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upload отправляет видео на /upload и возвращает путь на стороне бэкенда
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", "application/octet-stream")

	part, err := writer.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}

	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("write video data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: %w", ErrUpload, &RemoteError{StatusCode: resp.StatusCode, Message: string(bodyBytes)})
	}

	var out models.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrUpload, err)
	}
	if out.FilePath == "" {
		return "", fmt.Errorf("%w: empty filePath in response", ErrUpload)
	}

	log.Debug().Str("file", filename).Str("file_path", out.FilePath).Msg("Detection: upload success")
	return out.FilePath, nil
}

// Submit ставит задачу детекции и возвращает taskId, выданный бэкендом
func (c *Client) Submit(ctx context.Context, payload models.SubmitRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/detect", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	defer resp.Body.Close()

	var out models.SubmitResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = "Detection request failed"
		}
		return "", fmt.Errorf("%w: %w", ErrSubmit, &RemoteError{StatusCode: resp.StatusCode, Message: msg})
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrSubmit, decodeErr)
	}

	taskID := out.TaskID
	if taskID == "" {
		taskID = payload.TaskID
	}

	log.Debug().Str("task_id", taskID).Str("input_path", payload.InputPath).Msgf("Detection[%s]: submitted (%s)", taskID, resp.Status)
	return taskID, nil
}

// Status запрашивает текущее состояние задачи
func (c *Client) Status(ctx context.Context, taskID string) (*models.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+"/status/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStatus, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: bad status: %s, error: %s", ErrStatus, resp.Status, bodyBytes)
	}

	var out models.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrStatus, err)
	}

	return &out, nil
}
