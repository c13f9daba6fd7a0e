package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"herhealth/logging"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrEmptyResponse = errors.New("language model returned an empty answer")
)

type Options struct {
	Host         string
	Model        string
	PromptPrefix string
	Timeout      time.Duration
	// RetryMax is the number of retries after the first attempt.
	RetryMax  int
	RetryWait time.Duration
}

// OllamaClient asks a locally hosted model through the Ollama chat API.
// Connection errors and 5xx answers are retried with a fixed wait.
type OllamaClient struct {
	host   string
	model  string
	prefix string
	client *retryablehttp.Client
}

func NewOllamaClient(opts Options) *OllamaClient {
	if opts.Host == "" {
		opts.Host = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "mistral"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 2 * time.Second
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = opts.Timeout
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = opts.RetryWait
	client.RetryWaitMax = opts.RetryWait
	client.Backoff = fixedBackoff
	client.Logger = leveledLogger{logging.ComponentLogger("llm")}

	return &OllamaClient{
		host:   strings.TrimRight(opts.Host, "/"),
		model:  opts.Model,
		prefix: opts.PromptPrefix,
		client: client,
	}
}

func fixedBackoff(wait, _ time.Duration, _ int, _ *http.Response) time.Duration {
	return wait
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

// Ask sends the prefixed question and returns the model's answer.
func (c *OllamaClient) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	payload, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: c.prefix + question}},
		Stream:   false,
	})
	if err != nil {
		return "", err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "ollama chat")
	}
	defer resp.Body.Close()

	var body chatResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && body.Error != "" {
			return "", errors.Newf("ollama api error: %s", body.Error)
		}
		return "", errors.Newf("ollama api returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", errors.Wrap(decodeErr, "decode ollama response")
	}
	answer := strings.TrimSpace(body.Message.Content)
	if answer == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}

func (c *OllamaClient) String() string {
	return fmt.Sprintf("ollama(%s, %s)", c.host, c.model)
}

// leveledLogger adapts zap to retryablehttp's logger interface.
type leveledLogger struct {
	log *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}
