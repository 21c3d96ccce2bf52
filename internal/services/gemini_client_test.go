package services

import (
  "context"
  "encoding/json"
  "net/http"
  "net/http/httptest"
  "strings"
  "sync/atomic"
  "testing"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
)

func candidateReply(text string) string {
  body, _ := json.Marshal(map[string]any{
    "candidates": []map[string]any{
      {"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
    },
  })
  return string(body)
}

func newTestGemini(t *testing.T, baseURL string) GeminiClient {
  t.Helper()
  t.Setenv("GEMINI_API_KEY", "test-key")
  t.Setenv("GEMINI_BASE_URL", baseURL)
  t.Setenv("GEMINI_MODEL", "gemini-2.0-flash")
  t.Setenv("GEMINI_MAX_RETRIES", "1")
  client, err := NewGeminiClient(testLogger(t), nil)
  if err != nil {
    t.Fatalf("NewGeminiClient: %v", err)
  }
  return client
}

func TestGenerateContentSendsWireFormat(t *testing.T) {
  var gotPath, gotKey string
  var gotBody geminiRequest

  ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
    gotPath = r.URL.Path
    gotKey = r.URL.Query().Get("key")
    _ = json.NewDecoder(r.Body).Decode(&gotBody)
    _, _ = w.Write([]byte(candidateReply("hello")))
  }))
  defer ts.Close()

  client := newTestGemini(t, ts.URL)
  reply, err := client.GenerateContent(context.Background(), []GeminiPart{
    {Text: "describe"},
    {InlineData: &GeminiInlineData{MimeType: "image/png", Data: "aGk="}},
  })
  if err != nil {
    t.Fatalf("GenerateContent: %v", err)
  }
  if reply != "hello" {
    t.Fatalf("reply got=%q want=%q", reply, "hello")
  }
  if gotPath != "/models/gemini-2.0-flash:generateContent" {
    t.Fatalf("path got=%q", gotPath)
  }
  if gotKey != "test-key" {
    t.Fatalf("key got=%q", gotKey)
  }
  if len(gotBody.Contents) != 1 || len(gotBody.Contents[0].Parts) != 2 {
    t.Fatalf("unexpected request shape: %+v", gotBody)
  }
  if gotBody.Contents[0].Parts[1].InlineData.MimeType != "image/png" {
    t.Fatalf("inline mime got=%q", gotBody.Contents[0].Parts[1].InlineData.MimeType)
  }
}

func TestGenerateContentMapsUpstreamError(t *testing.T) {
  ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
    _, _ = w.Write([]byte(`{"error":{"code":400,"message":"invalid argument"}}`))
  }))
  defer ts.Close()

  client := newTestGemini(t, ts.URL)
  _, err := client.GenerateContent(context.Background(), []GeminiPart{{Text: "x"}})
  if err == nil {
    t.Fatal("expected error")
  }
  ae, ok := apierr.As(err)
  if !ok {
    t.Fatalf("expected apierr, got %T", err)
  }
  if ae.Status != http.StatusBadGateway {
    t.Fatalf("status got=%d want=%d", ae.Status, http.StatusBadGateway)
  }
  if !strings.Contains(err.Error(), "API Error: invalid argument") {
    t.Fatalf("message got=%q", err.Error())
  }
}

func TestGenerateContentRejectsEmptyCandidates(t *testing.T) {
  ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
    _, _ = w.Write([]byte(`{"candidates":[]}`))
  }))
  defer ts.Close()

  client := newTestGemini(t, ts.URL)
  _, err := client.GenerateContent(context.Background(), []GeminiPart{{Text: "x"}})
  if err == nil || !strings.Contains(err.Error(), "empty candidates") {
    t.Fatalf("got %v, want empty candidates error", err)
  }
}

func TestGenerateContentRetriesServerErrors(t *testing.T) {
  var attempts int64
  ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
    if atomic.AddInt64(&attempts, 1) == 1 {
      w.WriteHeader(http.StatusServiceUnavailable)
      return
    }
    _, _ = w.Write([]byte(candidateReply("recovered")))
  }))
  defer ts.Close()

  client := newTestGemini(t, ts.URL)
  reply, err := client.GenerateContent(context.Background(), []GeminiPart{{Text: "x"}})
  if err != nil {
    t.Fatalf("GenerateContent: %v", err)
  }
  if reply != "recovered" {
    t.Fatalf("reply got=%q want=%q", reply, "recovered")
  }
  if got := atomic.LoadInt64(&attempts); got != 2 {
    t.Fatalf("attempts got=%d want=2", got)
  }
}

func TestGenerateContentDoesNotRetryClientErrors(t *testing.T) {
  var attempts int64
  ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
    atomic.AddInt64(&attempts, 1)
    w.WriteHeader(http.StatusForbidden)
    _, _ = w.Write([]byte(`{"error":{"message":"key rejected"}}`))
  }))
  defer ts.Close()

  client := newTestGemini(t, ts.URL)
  _, err := client.GenerateContent(context.Background(), []GeminiPart{{Text: "x"}})
  if err == nil || !strings.Contains(err.Error(), "key rejected") {
    t.Fatalf("got %v, want key rejected error", err)
  }
  if got := atomic.LoadInt64(&attempts); got != 1 {
    t.Fatalf("attempts got=%d want=1", got)
  }
}

func TestStripCodeFences(t *testing.T) {
  cases := []struct {
    name string
    in   string
    want string
  }{
    {"bare json", `{"a":1}`, `{"a":1}`},
    {"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
    {"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
    {"leading whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
    {"no trailing fence", "```json\n{\"a\":1}", `{"a":1}`},
  }
  for _, tc := range cases {
    t.Run(tc.name, func(t *testing.T) {
      if got := StripCodeFences(tc.in); got != tc.want {
        t.Fatalf("got=%q want=%q", got, tc.want)
      }
    })
  }
}

func TestDecodeModelJSONRejectsProse(t *testing.T) {
  var out map[string]any
  err := DecodeModelJSON("I could not find any settings in the image.", &out)
  if err == nil {
    t.Fatal("expected error")
  }
  if !strings.Contains(err.Error(), "Invalid JSON response from AI") {
    t.Fatalf("message got=%q", err.Error())
  }
  if ae, ok := apierr.As(err); !ok || ae.Status != http.StatusBadGateway {
    t.Fatalf("expected 502 apierr, got %v", err)
  }
}
