package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/suite"

	contentmodels "transferai/internal/content/models"
	"transferai/internal/content/store/memory"
)

// Justification for unit tests: history filtering, image attachment and the
// OpenAI message mapping are invisible from the HTTP surface alone.
type ChatSuite struct {
	suite.Suite
	store     *memory.InMemoryStore
	responder *recordingResponder
	router    http.Handler
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, new(ChatSuite))
}

func (s *ChatSuite) SetupTest() {
	s.store = memory.New()
	s.responder = &recordingResponder{reply: "Take MATH 1A."}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	NewHandler(NewService(s.responder, s.store, logger), logger).Register(r)
	s.router = r

	s.Require().NoError(s.store.Put(context.Background(), &contentmodels.Blob{
		Filename:    "a.pdf_page_0.png",
		ContentType: "image/png",
		Data:        []byte("png-0"),
		Page:        &contentmodels.PageRef{OriginalPDF: "a.pdf", PageNumber: 0},
	}))
	s.Require().NoError(s.store.Put(context.Background(), &contentmodels.Blob{
		Filename:    "a.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4"),
	}))
}

func (s *ChatSuite) post(body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *ChatSuite) TestReplyWithHistoryAndImages() {
	rec := s.post(Request{
		NewMessage: "Which calculus course transfers?",
		History: []Message{
			{Role: "user", Content: "hi"},
			{Role: "tool", Content: "ignored"},
			{Role: "assistant", Content: "hello"},
		},
		ImageFilenames: []string{"a.pdf_page_0.png", " a.pdf_page_0.png ", "missing.png", "a.pdf", ""},
	})
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp Response
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("Take MATH 1A.", resp.Reply)

	turns := s.responder.turns
	s.Require().Len(turns, 4)
	s.Equal(RoleSystem, turns[0].Role)
	s.Equal(RoleUser, turns[1].Role)
	s.Equal(RoleAssistant, turns[2].Role)
	s.Equal("Which calculus course transfers?", turns[3].Text)
	s.Equal([][]byte{[]byte("png-0")}, turns[3].Images, "missing files and non-images are skipped")
}

func (s *ChatSuite) TestValidation() {
	rec := s.post(Request{NewMessage: "   "})
	s.Equal(http.StatusBadRequest, rec.Code)

	many := make([]string, maxImages+1)
	for i := range many {
		many[i] = fmt.Sprintf("a.pdf_page_%d.png", i)
	}
	rec = s.post(Request{NewMessage: "q", ImageFilenames: many})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ChatSuite) TestResponderFailureIsUnavailable() {
	s.responder.err = errors.New("upstream 500")
	rec := s.post(Request{NewMessage: "q"})
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *ChatSuite) TestOpenAIMapping() {
	fake := &fakeCompleter{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}}
	o := &OpenAI{client: fake, model: "test-model"}

	reply, err := o.Reply(context.Background(), []Turn{
		{Role: RoleSystem, Text: "sys"},
		{Role: RoleUser, Text: "look", Images: [][]byte{[]byte("png")}},
	})
	s.Require().NoError(err)
	s.Equal("ok", reply)

	s.Equal("test-model", fake.req.Model)
	s.Require().Len(fake.req.Messages, 2)
	s.Equal("sys", fake.req.Messages[0].Content)
	parts := fake.req.Messages[1].MultiContent
	s.Require().Len(parts, 2)
	s.Equal(openai.ChatMessagePartTypeImageURL, parts[1].Type)
	s.True(strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))

	fake.resp = openai.ChatCompletionResponse{}
	_, err = o.Reply(context.Background(), []Turn{{Role: RoleUser, Text: "q"}})
	s.Error(err)

	_, err = NewOpenAI("", "", "m")
	s.Error(err)
}

type recordingResponder struct {
	turns []Turn
	reply string
	err   error
}

func (r *recordingResponder) Reply(_ context.Context, turns []Turn) (string, error) {
	r.turns = turns
	return r.reply, r.err
}

type fakeCompleter struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, nil
}
