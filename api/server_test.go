package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fabfab/cognigraph/chat"
	"github.com/fabfab/cognigraph/chunk"
	"github.com/fabfab/cognigraph/extract"
	"github.com/fabfab/cognigraph/graph"
	"github.com/fabfab/cognigraph/ingest"
	"github.com/fabfab/cognigraph/llm"
	"github.com/fabfab/cognigraph/session"
)

const extractionReply = `{"entities":[{"name":"Alice","type":"person"},{"name":"Acme Corp","type":"organization"}],` +
	`"relations":[{"source":"Alice","target":"Acme Corp","label":"works at"}]}`

// routerClient answers extraction prompts with a canned graph and everything
// else with a chat reply.
type routerClient struct {
	chatReply string
	err       error
}

func (c *routerClient) Generate(_ context.Context, messages []llm.Message) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	prompt := messages[len(messages)-1].Content
	if strings.Contains(prompt, "Extract a knowledge graph") {
		return extractionReply, nil
	}
	return c.chatReply, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func newTestServer(client llm.Client) *Server {
	logger := log.New(io.Discard, "", 0)
	guarded := llm.Guard(client)

	extractor := extract.New(nil, nil, logger)
	splitter := chunk.NewSplitter(800, 120)
	graphExtractor := graph.NewExtractor(guarded, logger, 2)
	ingestSvc := ingest.NewService(extractor, splitter, graphExtractor, fixedEmbedder{}, logger)
	engine := chat.NewEngine(fixedEmbedder{}, guarded, logger, 2)

	return New(session.NewStore(logger), ingestSvc, engine, logger)
}

func uploadRequest(t *testing.T, sessionID, filename, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	return req
}

func jsonRequest(sessionID, path string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	return req
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestMissingSessionHeader(t *testing.T) {
	s := newTestServer(&routerClient{})

	for _, req := range []*http.Request{
		uploadRequest(t, "", "doc.txt", "text"),
		jsonRequest("", "/chat", chatRequest{Message: "hi"}),
		jsonRequest("", "/reset", struct{}{}),
	} {
		rec := do(s, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s without session header: status %d", req.URL.Path, rec.Code)
		}
		if detail := decodeDetail(t, rec).Detail; !strings.Contains(detail, sessionHeader) {
			t.Errorf("detail %q does not name the missing header", detail)
		}
	}
}

func TestUploadBuildsGraph(t *testing.T) {
	s := newTestServer(&routerClient{})

	rec := do(s, uploadRequest(t, "s1", "doc.txt", "Alice works at Acme Corp."))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var payload graph.Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Nodes) != 2 || len(payload.Links) != 1 {
		t.Fatalf("payload: %d nodes, %d links", len(payload.Nodes), len(payload.Links))
	}

	types := map[string]string{}
	for _, n := range payload.Nodes {
		types[n.ID] = n.Type
	}
	if types["Alice"] != "person" || types["Acme Corp"] != "organization" {
		t.Errorf("node types: %v", types)
	}
	if payload.Links[0].Label != "works at" {
		t.Errorf("link label = %q", payload.Links[0].Label)
	}
}

func TestUploadUnsupportedFormat(t *testing.T) {
	s := newTestServer(&routerClient{})

	rec := do(s, uploadRequest(t, "s1", "image.png", "binary"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	if detail := decodeDetail(t, rec).Detail; !strings.Contains(detail, "unsupported") {
		t.Errorf("detail = %q", detail)
	}
}

func TestChatFlow(t *testing.T) {
	s := newTestServer(&routerClient{chatReply: "Alice works at Acme Corp."})

	if rec := do(s, uploadRequest(t, "s1", "doc.txt", "Alice works at Acme Corp.")); rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d %s", rec.Code, rec.Body.String())
	}

	rec := do(s, jsonRequest("s1", "/chat", chatRequest{Message: "Where does Alice work?"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "Alice works at Acme Corp." {
		t.Errorf("response = %q", resp.Response)
	}

	found := map[string]bool{}
	for _, n := range resp.HighlightedNodes {
		found[n] = true
	}
	if !found["Alice"] || !found["Acme Corp"] {
		t.Errorf("highlighted nodes = %v", resp.HighlightedNodes)
	}
}

func TestChatWithoutDocument(t *testing.T) {
	s := newTestServer(&routerClient{})

	rec := do(s, jsonRequest("s1", "/chat", chatRequest{Message: "hi"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	if detail := decodeDetail(t, rec).Detail; !strings.Contains(detail, "no document") {
		t.Errorf("detail = %q", detail)
	}
}

func TestChatEmptyMessage(t *testing.T) {
	s := newTestServer(&routerClient{})

	if rec := do(s, jsonRequest("s1", "/chat", chatRequest{})); rec.Code != http.StatusBadRequest {
		t.Errorf("status %d", rec.Code)
	}
}

func TestResetClearsSession(t *testing.T) {
	s := newTestServer(&routerClient{chatReply: "ok"})

	if rec := do(s, uploadRequest(t, "s1", "doc.txt", "Alice works at Acme Corp.")); rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d", rec.Code)
	}

	rec := do(s, jsonRequest("s1", "/reset", struct{}{}))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status %d", rec.Code)
	}
	var payload graph.Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Nodes) != 0 || len(payload.Links) != 0 {
		t.Errorf("reset payload not empty: %+v", payload)
	}

	if rec := do(s, jsonRequest("s1", "/chat", chatRequest{Message: "hi"})); rec.Code != http.StatusBadRequest {
		t.Errorf("chat after reset: status %d", rec.Code)
	}
}

func TestSessionIsolation(t *testing.T) {
	s := newTestServer(&routerClient{chatReply: "ok"})

	if rec := do(s, uploadRequest(t, "s1", "doc.txt", "Alice works at Acme Corp.")); rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d", rec.Code)
	}

	if rec := do(s, jsonRequest("s2", "/chat", chatRequest{Message: "hi"})); rec.Code != http.StatusBadRequest {
		t.Errorf("other session sees s1 document: status %d", rec.Code)
	}
}

func TestGraphEndpoint(t *testing.T) {
	s := newTestServer(&routerClient{})

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	req.Header.Set(sessionHeader, "s1")
	rec := do(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var payload graph.Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Nodes) != 0 {
		t.Errorf("empty session returned nodes: %+v", payload)
	}

	if rec := do(s, uploadRequest(t, "s1", "doc.txt", "Alice works at Acme Corp.")); rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d", rec.Code)
	}
	rec = do(s, req.Clone(req.Context()))
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Nodes) != 2 {
		t.Errorf("graph after upload: %+v", payload)
	}
}

func TestRateLimitOnUpload(t *testing.T) {
	s := newTestServer(&routerClient{err: &llm.RateLimitError{RetryAfter: 45 * time.Second}})

	rec := do(s, uploadRequest(t, "s1", "doc.txt", "Alice works at Acme Corp."))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeDetail(t, rec)
	if !strings.Contains(resp.Detail, "wait 45s") {
		t.Errorf("detail %q missing wait hint", resp.Detail)
	}
	if resp.RetryAfterSeconds != 45 {
		t.Errorf("retry_after_seconds = %d", resp.RetryAfterSeconds)
	}
	if rec.Header().Get("Retry-After") != "45" {
		t.Errorf("Retry-After header = %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimitOnChat(t *testing.T) {
	okClient := &routerClient{chatReply: "ok"}
	s := newTestServer(okClient)

	if rec := do(s, uploadRequest(t, "s1", "doc.txt", "Alice works at Acme Corp.")); rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d", rec.Code)
	}

	okClient.err = &llm.RateLimitError{RetryAfter: 45 * time.Second}
	rec := do(s, jsonRequest("s1", "/chat", chatRequest{Message: "hi"}))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if detail := decodeDetail(t, rec).Detail; !strings.Contains(detail, "wait 45s") {
		t.Errorf("detail = %q", detail)
	}
}

func TestProviderErrorMapsToBadGateway(t *testing.T) {
	s := newTestServer(&routerClient{err: &llm.ProviderError{}})

	rec := do(s, uploadRequest(t, "s1", "doc.txt", "Alice works at Acme Corp."))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&routerClient{})

	rec := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status %d", rec.Code)
	}
}
