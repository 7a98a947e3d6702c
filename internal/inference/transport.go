package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Message is one conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transport is the external streaming inference collaborator: given a session
// and prompt context it returns the completed reply. Streaming is an
// implementation detail; callers receive the aggregated text.
type Transport interface {
	Complete(ctx context.Context, endpoint, sessionID string, messages []Message) (string, error)
}

// HTTPTransport talks to a host's inference endpoint. Replies may arrive as a
// single JSON document or as an SSE token stream; both are aggregated.
type HTTPTransport struct {
	httpClient *http.Client
}

// NewHTTPTransport creates a transport bounded by timeout per request.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{httpClient: &http.Client{Timeout: timeout}}
}

type chatRequest struct {
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Complete sends the prompt context and returns the full reply text.
func (t *HTTPTransport) Complete(ctx context.Context, endpoint, sessionID string, messages []Message) (string, error) {
	payload, err := json.Marshal(chatRequest{SessionID: sessionID, Messages: messages, Stream: true})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal chat request")
	}

	url := strings.TrimRight(endpoint, "/") + "/v1/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "failed to build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "chat request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("inference endpoint returned http %d", resp.StatusCode)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return aggregateSSE(bufio.NewScanner(resp.Body))
	}

	var reply chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", errors.Wrap(err, "failed to decode chat response")
	}
	return reply.Reply, nil
}

func aggregateSSE(scanner *bufio.Scanner) (string, error) {
	var sb strings.Builder
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Hosts that stream raw text rather than JSON chunks.
			sb.WriteString(data)
			continue
		}
		sb.WriteString(chunk.Token)
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(err, "stream read failed")
	}
	return sb.String(), nil
}
