package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	analysis "github.com/silvercoin/advisor/backend/internal/analysis/sentiment"
	"github.com/silvercoin/advisor/backend/internal/model/profile"
	"github.com/silvercoin/advisor/backend/internal/service/auth"
	chatService "github.com/silvercoin/advisor/backend/internal/service/chat"
)

type fakePipeline struct {
	err error
}

func (f fakePipeline) Chat(context.Context, chatService.Request, ...chatService.Option) (*chatService.Result, error) {
	return nil, f.err
}

func newRecorderRouter(p Pipeline) *chi.Mux {
	r := chi.NewRouter()
	New(p, nil).RegisterRoutes(r)
	return r
}

func TestStreamErrorsBeforeOpening(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&auth.Error{Reason: auth.ReasonMissing}, http.StatusUnauthorized},
		{profile.ErrNotFound, http.StatusNotFound},
		{chatService.ErrMessageRequired, http.StatusBadRequest},
	}
	for _, tc := range cases {
		r := newRecorderRouter(fakePipeline{err: tc.err})
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stream/p1?message=hi", nil))

		if resp.Code != tc.status {
			t.Fatalf("expected %d for %v, got %d", tc.status, tc.err, resp.Code)
		}
		if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected json error body, got %q", ct)
		}
	}
}

// scriptedPipeline replays the stage sequence of a successful turn.
type scriptedPipeline struct {
	got chatService.Request
}

func (s *scriptedPipeline) Chat(_ context.Context, req chatService.Request, opts ...chatService.Option) (*chatService.Result, error) {
	s.got = req
	result := &chatService.Result{
		ProfileID:    req.ProfileID,
		Reply:        "Keep some cash aside.",
		Sentiment:    analysis.Result{Label: analysis.Negative, Confidence: 0.7},
		Tags:         []string{"saving"},
		HistorySaved: true,
	}
	emit := chatService.ObserverFrom(opts...)
	emit(chatService.Event{Stage: chatService.StageAuthenticating})
	emit(chatService.Event{Stage: chatService.StageResolvingProfile})
	emit(chatService.Event{Stage: chatService.StageClassifying})
	emit(chatService.Event{Stage: chatService.StageBuilding, Sentiment: &result.Sentiment, Tags: result.Tags})
	emit(chatService.Event{Stage: chatService.StageCompleting})
	emit(chatService.Event{Stage: chatService.StagePersisting})
	emit(chatService.Event{Stage: chatService.StageDone})
	return result, nil
}

func TestStreamEmitsStagesAndMessage(t *testing.T) {
	pipeline := &scriptedPipeline{}
	r := newRecorderRouter(pipeline)

	req := httptest.NewRequest(http.MethodGet, "/stream/p1?message=I%27m+worried+about+my+savings", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if pipeline.got.Credential != "tok" || pipeline.got.Message != "I'm worried about my savings" || pipeline.got.ProfileID != "p1" {
		t.Fatalf("unexpected request: %+v", pipeline.got)
	}

	body := resp.Body.String()
	for _, want := range []string{
		"event: stage\ndata: {\"stage\":\"classifying\"}",
		"event: sentiment\ndata: {\"sentiment\":\"NEGATIVE\",\"confidence\":0.7,\"tags\":[\"saving\"]}",
		"event: message\ndata: {\"message\":\"Keep some cash aside.\"",
		"event: end\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "authenticating") {
		t.Fatalf("pre-stream stages must not be emitted:\n%s", body)
	}
}
