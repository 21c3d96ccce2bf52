package services

import (
  "bytes"
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "io"
  "math/rand"
  "net"
  "net/http"
  "os"
  "strconv"
  "strings"
  "time"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/platform/logger"
)

// GeminiPart is one part of a multimodal request: plain text or inline
// base64 file data.
type GeminiPart struct {
  Text       string            `json:"text,omitempty"`
  InlineData *GeminiInlineData `json:"inline_data,omitempty"`
}

type GeminiInlineData struct {
  MimeType string `json:"mime_type"`
  Data     string `json:"data"`
}

type GeminiClient interface {
  // GenerateContent posts the parts to the model and returns the text of the
  // first candidate.
  GenerateContent(ctx context.Context, parts []GeminiPart) (string, error)
  Model() string
}

type geminiClient struct {
  log        *logger.Logger
  baseURL    string
  apiKey     string
  model      string
  httpClient *http.Client
  limiter    *RateLimiter

  maxRetries int
}

func NewGeminiClient(log *logger.Logger, limiter *RateLimiter) (GeminiClient, error) {
  apiKey := os.Getenv("GEMINI_API_KEY")
  if apiKey == "" {
    return nil, fmt.Errorf("missing GEMINI_API_KEY")
  }

  baseURL := os.Getenv("GEMINI_BASE_URL")
  if baseURL == "" {
    baseURL = "https://generativelanguage.googleapis.com/v1beta"
  }

  model := os.Getenv("GEMINI_MODEL")
  if model == "" {
    model = "gemini-2.0-flash"
  }

  timeoutSec := 120
  if v := os.Getenv("GEMINI_TIMEOUT_SECONDS"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
      timeoutSec = parsed
    }
  }

  maxRetries := 3
  if v := os.Getenv("GEMINI_MAX_RETRIES"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
      maxRetries = parsed
    }
  }

  return &geminiClient{
    log:        log.With("service", "GeminiClient"),
    baseURL:    strings.TrimRight(baseURL, "/"),
    apiKey:     apiKey,
    model:      model,
    httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
    limiter:    limiter,
    maxRetries: maxRetries,
  }, nil
}

func (c *geminiClient) Model() string { return c.model }

type geminiHTTPError struct {
  StatusCode int
  Body       string
}

func (e *geminiHTTPError) Error() string {
  return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
  if code == 408 || code == 429 {
    return true
  }
  if code >= 500 && code <= 599 {
    return true
  }
  return false
}

func isRetryableErr(err error) bool {
  if err == nil {
    return false
  }
  var netErr net.Error
  if errors.As(err, &netErr) {
    if netErr.Timeout() {
      return true
    }
  }
  var httpErr *geminiHTTPError
  if errors.As(err, &httpErr) {
    return isRetryableHTTP(httpErr.StatusCode)
  }
  return false
}

func jitterSleep(base time.Duration) time.Duration {
  // +/- 20%
  if base <= 0 {
    return 0
  }
  j := 0.2
  delta := base.Seconds() * j
  low := base.Seconds() - delta
  high := base.Seconds() + delta
  if low < 0 {
    low = 0
  }
  v := low + rand.Float64()*(high-low)
  return time.Duration(v * float64(time.Second))
}

type geminiRequest struct {
  Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
  Parts []GeminiPart `json:"parts"`
}

type geminiResponse struct {
  Candidates []struct {
    Content struct {
      Parts []struct {
        Text string `json:"text"`
      } `json:"parts"`
    } `json:"content"`
  } `json:"candidates"`
  Error *struct {
    Code    int    `json:"code"`
    Message string `json:"message"`
  } `json:"error"`
}

func (c *geminiClient) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
  var buf bytes.Buffer
  if err := json.NewEncoder(&buf).Encode(body); err != nil {
    return nil, nil, err
  }

  url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
  req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
  if err != nil {
    return nil, nil, err
  }
  req.Header.Set("Content-Type", "application/json")

  resp, err := c.httpClient.Do(req)
  if err != nil {
    return nil, nil, err
  }

  raw, readErr := io.ReadAll(resp.Body)
  _ = resp.Body.Close()
  if readErr != nil {
    return resp, nil, readErr
  }

  if resp.StatusCode < 200 || resp.StatusCode >= 300 {
    return resp, raw, &geminiHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
  }
  return resp, raw, nil
}

func (c *geminiClient) GenerateContent(ctx context.Context, parts []GeminiPart) (string, error) {
  if len(parts) == 0 {
    return "", apierr.Validation("at least one content part is required")
  }
  if c.limiter != nil {
    if err := c.limiter.Wait(ctx); err != nil {
      return "", err
    }
  }

  body := geminiRequest{Contents: []geminiContent{{Parts: parts}}}

  backoff := 1 * time.Second
  var lastErr error

  for attempt := 0; attempt <= c.maxRetries; attempt++ {
    if ctx.Err() != nil {
      return "", ctx.Err()
    }

    resp, raw, err := c.doOnce(ctx, body)
    if err == nil {
      var parsed geminiResponse
      if uErr := json.Unmarshal(raw, &parsed); uErr != nil {
        return "", apierr.Upstream(fmt.Errorf("API Error: invalid response body: %w", uErr))
      }
      if parsed.Error != nil {
        return "", apierr.Upstream(fmt.Errorf("API Error: %s", parsed.Error.Message))
      }
      if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
        return "", apierr.Upstream(fmt.Errorf("API Error: empty candidates"))
      }
      return parsed.Candidates[0].Content.Parts[0].Text, nil
    }
    lastErr = err

    if !isRetryableErr(err) {
      break
    }
    if attempt == c.maxRetries {
      break
    }

    sleepFor := backoff
    if resp != nil {
      ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
      if ra != "" {
        if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
          sleepFor = time.Duration(secs) * time.Second
        }
      }
    }
    if sleepFor > 10*time.Second {
      sleepFor = 10 * time.Second
    }
    sleepFor = jitterSleep(sleepFor)

    c.log.Warn("Gemini request retrying",
      "attempt", attempt+1,
      "max_retries", c.maxRetries,
      "sleep", sleepFor.String(),
      "error", err.Error(),
    )

    time.Sleep(sleepFor)
    backoff *= 2
  }

  var httpErr *geminiHTTPError
  if errors.As(lastErr, &httpErr) {
    return "", apierr.Upstream(fmt.Errorf("API Error: %s", extractUpstreamMessage(httpErr.Body)))
  }
  return "", apierr.Upstream(fmt.Errorf("API Error: %v", lastErr))
}

func extractUpstreamMessage(body string) string {
  var wrapped struct {
    Error struct {
      Message string `json:"message"`
    } `json:"error"`
  }
  if err := json.Unmarshal([]byte(body), &wrapped); err == nil && wrapped.Error.Message != "" {
    return wrapped.Error.Message
  }
  body = strings.TrimSpace(body)
  if len(body) > 300 {
    body = body[:300]
  }
  return body
}

// StripCodeFences removes a leading ```json (or bare ```) fence and the
// trailing fence the model often wraps JSON answers in.
func StripCodeFences(s string) string {
  out := strings.TrimSpace(s)
  if strings.HasPrefix(out, "```") {
    out = strings.TrimPrefix(out, "```json")
    out = strings.TrimPrefix(out, "```")
    if idx := strings.LastIndex(out, "```"); idx >= 0 {
      out = out[:idx]
    }
  }
  return strings.TrimSpace(out)
}

// DecodeModelJSON parses a model reply that is expected to be JSON, tolerant
// of code fences.
func DecodeModelJSON(reply string, out any) error {
  cleaned := StripCodeFences(reply)
  if err := json.Unmarshal([]byte(cleaned), out); err != nil {
    return apierr.Upstream(fmt.Errorf("Invalid JSON response from AI: %w", err))
  }
  return nil
}
