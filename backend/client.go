package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const (
	uploadPath = "/upload_pdf"
	listPath   = "/list_pdfs"
	chatPath   = "/chat"

	recordingFilename = "recording.wav"
	wavContentType    = "audio/wav"
	pdfContentType    = "application/pdf"
)

var (
	ErrNoFile     = errors.New("no file selected")
	ErrNoDocument = errors.New("no pdf selected")
	ErrEmptyClip  = errors.New("audio clip is empty")
)

// APIError is a non-2xx answer from the backend
type APIError struct {
	StatusCode int
	Message    string // the server's "error" field, may be empty
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// ErrorText returns the server-provided error text of err, or fallback when
// the error did not come with one.
func ErrorText(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// UploadResult is the body of a successful upload
type UploadResult struct {
	Message       string `json:"message"`
	Filename      string `json:"filename"`
	CloudFilename string `json:"cloud_filename"`
}

// ChatReply is the body of a successful chat turn
type ChatReply struct {
	ResponseText string `json:"response_text"`
	TTSAudioURL  string `json:"tts_audio_url,omitempty"`
}

type listResponse struct {
	PDFs []string `json:"pdfs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client talks to the PDF chat backend. No call is retried.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient creates a client for the backend rooted at baseURL
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// ResolveURL resolves a backend reference such as "/audio/ai_1.wav" against
// the base URL. Absolute URLs are returned unchanged.
func (c *Client) ResolveURL(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid backend reference %q: %w", ref, err)
	}
	return c.baseURL.ResolveReference(r).String(), nil
}

// UploadPDF submits the file as multipart field pdf_file
func (c *Client) UploadPDF(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	if filename == "" || r == nil {
		return nil, ErrNoFile
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := createFormFile(mw, "pdf_file", filename, pdfContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read pdf %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var result UploadResult
	if err := c.do(ctx, http.MethodPost, uploadPath, body, mw.FormDataContentType(), &result); err != nil {
		return nil, err
	}

	slog.Debug("PDF uploaded", "filename", result.Filename, "cloudFilename", result.CloudFilename)
	return &result, nil
}

// ListPDFs returns the filenames the backend currently knows, in server order
func (c *Client) ListPDFs(ctx context.Context) ([]string, error) {
	var result listResponse
	if err := c.do(ctx, http.MethodGet, listPath, nil, "", &result); err != nil {
		return nil, err
	}
	if result.PDFs == nil {
		return []string{}, nil
	}
	return result.PDFs, nil
}

// SendChat submits the recorded clip together with the selected document
func (c *Client) SendChat(ctx context.Context, pdfFilename string, clip []byte) (*ChatReply, error) {
	if pdfFilename == "" {
		return nil, ErrNoDocument
	}
	if len(clip) == 0 {
		return nil, ErrEmptyClip
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("pdf_filename", pdfFilename); err != nil {
		return nil, fmt.Errorf("failed to write pdf_filename field: %w", err)
	}
	part, err := createFormFile(mw, "audio_file", recordingFilename, wavContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(clip); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var reply ChatReply
	if err := c.do(ctx, http.MethodPost, chatPath, body, mw.FormDataContentType(), &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// FetchAudio downloads a TTS reply referenced by the chat response
func (c *Client) FetchAudio(ctx context.Context, ref string) ([]byte, string, error) {
	target, err := c.ResolveURL(ref)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &APIError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	target := c.baseURL.JoinPath(path).String()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	slog.Debug("Backend request finished",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil {
			apiErr.Message = er.Error
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// createFormFile is multipart.Writer.CreateFormFile with a caller supplied
// content type instead of application/octet-stream.
func createFormFile(mw *multipart.Writer, field, filename, contentType string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, escapeQuotes(filename)))
	h.Set("Content-Type", contentType)
	return mw.CreatePart(h)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
