// Package renderer talks to the external render backend over HTTP.
// The backend is stateless; its base URL is supplied per call.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"forge/internal/pkg/errors"
	"forge/internal/template"
)

// State is the renderer-side lifecycle of a submitted request.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// Status is a point-in-time view of a renderer job.
type Status struct {
	State State
	// OutputRefs are ephemeral URLs into the renderer's working storage,
	// populated only when State is done.
	OutputRefs []string
	Message    string
}

// Client is the outbound contract consumed by the orchestrator and worker.
type Client interface {
	Submit(ctx context.Context, baseURL string, req *template.RenderRequest) (string, error)
	PollStatus(ctx context.Context, baseURL, rendererID string) (*Status, error)
	FetchResult(ctx context.Context, ref string) ([]byte, error)
}

// HTTPClient implements Client against the renderer's HTTP surface.
type HTTPClient struct {
	client *http.Client
}

func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type submitPayload struct {
	Prompt   map[string]any `json:"prompt"`
	ClientID string         `json:"client_id,omitempty"`
}

type submitResponse struct {
	PromptID  string `json:"prompt_id"`
	PromptIDC string `json:"promptId"`
	NodeID    string `json:"node_id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// Submit posts the render document and returns the renderer-assigned id.
func (c *HTTPClient) Submit(ctx context.Context, baseURL string, req *template.RenderRequest) (string, error) {
	const op = "renderer.submit"

	body, err := json.Marshal(submitPayload{Prompt: req.Document, ClientID: req.ClientID})
	if err != nil {
		return "", errors.Wrap(err, op, "encoding render request")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, op, "building submit request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUnavailable, op, "renderer unreachable")
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))

	var sr submitResponse
	_ = json.Unmarshal(raw, &sr)

	if res.StatusCode != http.StatusOK {
		detail := sr.Error
		if detail == "" {
			detail = sr.Message
		}
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return "", errors.Newf(errors.CodeUnavailable, "renderer rejected request (%d): %s", res.StatusCode, detail)
	}

	id := sr.PromptID
	if id == "" {
		id = sr.PromptIDC
	}
	if id == "" {
		id = sr.NodeID
	}
	if id == "" {
		return "", errors.Newf(errors.CodeUnavailable, "renderer returned no request id")
	}

	return id, nil
}

type historyEntry struct {
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
	Outputs map[string]map[string]json.RawMessage `json:"outputs"`
}

type outputItem struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// PollStatus reads the renderer's history record for the id. An absent
// record means the request is still queued.
func (c *HTTPClient) PollStatus(ctx context.Context, baseURL, rendererID string) (*Status, error) {
	const op = "renderer.pollStatus"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	base := strings.TrimRight(baseURL, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/history/"+url.PathEscape(rendererID), nil)
	if err != nil {
		return nil, errors.Wrap(err, op, "building history request")
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, op, "renderer unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.CodeUnavailable, "history fetch failed: %d", res.StatusCode)
	}

	var history map[string]historyEntry
	if err := json.NewDecoder(res.Body).Decode(&history); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, op, "decoding history response")
	}

	entry, ok := history[rendererID]
	if !ok {
		return &Status{State: StateQueued}, nil
	}

	switch {
	case entry.Status.StatusStr == "error":
		return &Status{State: StateError, Message: "renderer reported failure"}, nil
	case entry.Status.Completed:
		return &Status{State: StateDone, OutputRefs: outputRefs(base, entry)}, nil
	default:
		return &Status{State: StateRunning}, nil
	}
}

// FetchResult downloads an ephemeral result. Empty bodies are rejected so
// a half-written renderer file never becomes a durable artifact.
func (c *HTTPClient) FetchResult(ctx context.Context, ref string) ([]byte, error) {
	const op = "renderer.fetchResult"

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, errors.Wrap(err, op, "building result request")
	}
	httpReq.Header.Set("Cache-Control", "no-store")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, op, "renderer unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.CodeUnavailable, "result fetch failed: %d", res.StatusCode)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, op, "reading result body")
	}
	if len(data) == 0 {
		return nil, errors.Newf(errors.CodeUnavailable, "result file is empty")
	}

	return data, nil
}

// outputRefs flattens a history entry's output lists into view URLs.
func outputRefs(base string, entry historyEntry) []string {
	var refs []string
	for _, node := range entry.Outputs {
		for _, raw := range node {
			var items []outputItem
			if err := json.Unmarshal(raw, &items); err != nil {
				continue
			}
			for _, it := range items {
				if it.Filename == "" {
					continue
				}
				q := url.Values{}
				q.Set("filename", it.Filename)
				q.Set("subfolder", it.Subfolder)
				q.Set("type", defaultString(it.Type, "output"))
				refs = append(refs, fmt.Sprintf("%s/view?%s", base, q.Encode()))
			}
		}
	}
	return refs
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
