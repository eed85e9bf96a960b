package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"bankassist/internal/api"
	"bankassist/internal/config"
)

type stubService struct {
	sendFunc        func(ctx context.Context, message string) (*api.ChatReply, error)
	suggestionsFunc func(ctx context.Context) ([]string, error)
}

func (s *stubService) SendMessage(ctx context.Context, message string) (*api.ChatReply, error) {
	if s.sendFunc == nil {
		return &api.ChatReply{Response: "ok"}, nil
	}
	return s.sendFunc(ctx, message)
}

func (s *stubService) Suggestions(ctx context.Context) ([]string, error) {
	if s.suggestionsFunc == nil {
		return nil, nil
	}
	return s.suggestionsFunc(ctx)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(svc Service, opts Options) *Engine {
	return NewEngine(svc, opts, testLogger())
}

func TestOpenAppendsExactlyOneWelcome(t *testing.T) {
	fetchStarted := make(chan struct{})
	release := make(chan struct{})
	svc := &stubService{
		suggestionsFunc: func(ctx context.Context) ([]string, error) {
			close(fetchStarted)
			<-release
			return []string{"Aide"}, nil
		},
	}
	engine := newTestEngine(svc, Options{Mode: config.ModeModal})

	engine.Open(context.Background(), &api.Identity{UserID: 1, Username: "alice", DisplayName: "Alice Ben Salah"})

	// Before the suggestion fetch resolves the timeline holds the welcome
	// message and nothing else.
	<-fetchStarted
	state := engine.Snapshot()
	if len(state.Messages) != 1 {
		t.Fatalf("after Open got %d messages, want 1", len(state.Messages))
	}
	if state.Messages[0].Role != RoleAssistant {
		t.Errorf("welcome role = %q, want %q", state.Messages[0].Role, RoleAssistant)
	}
	if !strings.Contains(state.Messages[0].Content, "Alice Ben Salah") {
		t.Errorf("welcome %q does not mention the display name", state.Messages[0].Content)
	}
	close(release)
}

func TestOpenTwiceIsNoOp(t *testing.T) {
	engine := newTestEngine(&stubService{}, Options{Mode: config.ModeWidget})
	identity := &api.Identity{UserID: 1, Username: "alice", DisplayName: "Alice"}

	engine.Open(context.Background(), identity)
	engine.Open(context.Background(), identity)

	if got := len(engine.Snapshot().Messages); got != 1 {
		t.Errorf("after double Open got %d messages, want 1 (no duplicate welcome)", got)
	}
}

func TestWelcomeTextPerMode(t *testing.T) {
	identity := &api.Identity{DisplayName: "Alice"}

	widget := welcomeText(config.ModeWidget, identity)
	modal := welcomeText(config.ModeModal, identity)

	if widget == modal {
		t.Error("widget and modal welcome texts should differ")
	}
	if !strings.Contains(widget, "Alice") || !strings.Contains(modal, "Alice") {
		t.Error("welcome texts must carry the display name")
	}
	if got := welcomeText(config.ModeWidget, nil); !strings.Contains(got, "cher client") {
		t.Errorf("welcome without identity = %q, want generic salutation", got)
	}
}

func TestSendRejectsBlankText(t *testing.T) {
	called := false
	svc := &stubService{
		sendFunc: func(ctx context.Context, message string) (*api.ChatReply, error) {
			called = true
			return &api.ChatReply{Response: "ok"}, nil
		},
	}
	engine := newTestEngine(svc, Options{})

	for _, text := range []string{"", "   ", "\t\n"} {
		if _, err := engine.Send(context.Background(), text); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q) error = %v, want ErrEmptyMessage", text, err)
		}
	}
	if called {
		t.Error("blank sends must not reach the service")
	}
	if got := len(engine.Snapshot().Messages); got != 0 {
		t.Errorf("timeline has %d messages after blank sends, want 0", got)
	}
}

func TestSendAppendsUserThenReplyWithIntent(t *testing.T) {
	svc := &stubService{
		sendFunc: func(ctx context.Context, message string) (*api.ChatReply, error) {
			if message != "solde" {
				t.Errorf("service received %q, want %q", message, "solde")
			}
			return &api.ChatReply{
				Response: "Votre solde est de 100.000 DT",
				Intent:   "consultation_solde",
			}, nil
		},
	}
	engine := newTestEngine(svc, Options{})

	reply, err := engine.Send(context.Background(), "solde")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	state := engine.Snapshot()
	if len(state.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(state.Messages))
	}
	if state.Messages[0].Role != RoleUser || state.Messages[0].Content != "solde" {
		t.Errorf("first message = %+v, want user message %q", state.Messages[0], "solde")
	}
	if state.Messages[1].Role != RoleAssistant || state.Messages[1].Intent != "consultation_solde" {
		t.Errorf("second message = %+v, want assistant reply tagged consultation_solde", state.Messages[1])
	}
	if reply.Intent != "consultation_solde" {
		t.Errorf("reply intent = %q, want consultation_solde", reply.Intent)
	}
	if state.Pending {
		t.Error("engine still pending after resolved send")
	}
}

func TestSendFailureAppendsOneErrorMessageAndReturnsToIdle(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		content string
	}{
		{
			name:    "service returned error status",
			err:     &api.StatusError{Code: 500, Message: "boom"},
			content: fallbackServiceError,
		},
		{
			name:    "service unreachable",
			err:     errors.New("dial tcp: connection refused"),
			content: fallbackUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				sendFunc: func(ctx context.Context, message string) (*api.ChatReply, error) {
					return nil, tt.err
				},
			}
			engine := newTestEngine(svc, Options{})

			reply, err := engine.Send(context.Background(), "virement")
			if err != nil {
				t.Fatalf("Send() error = %v, failures must land in the timeline", err)
			}

			state := engine.Snapshot()
			if len(state.Messages) != 2 {
				t.Fatalf("got %d messages, want 2 (user + error bubble)", len(state.Messages))
			}
			bubble := state.Messages[1]
			if !bubble.IsError {
				t.Error("assistant message not flagged as error")
			}
			if bubble.Content != tt.content {
				t.Errorf("fallback = %q, want %q", bubble.Content, tt.content)
			}
			if !reply.IsError {
				t.Error("returned message not flagged as error")
			}
			if engine.Pending() {
				t.Error("engine must return to Idle after a failed send")
			}
		})
	}
}

func TestSendWhileAwaitingIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	dispatched := 0
	svc := &stubService{
		sendFunc: func(ctx context.Context, message string) (*api.ChatReply, error) {
			dispatched++
			close(started)
			<-release
			return &api.ChatReply{Response: "ok"}, nil
		},
	}
	engine := newTestEngine(svc, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := engine.Send(context.Background(), "premier"); err != nil {
			t.Errorf("first Send() error = %v", err)
		}
	}()

	<-started
	if _, err := engine.Send(context.Background(), "deuxième"); !errors.Is(err, ErrBusy) {
		t.Errorf("second Send() error = %v, want ErrBusy", err)
	}
	// The rejected send left no trace: only the first user message so far.
	if got := len(engine.Snapshot().Messages); got != 1 {
		t.Errorf("timeline has %d messages while awaiting, want 1", got)
	}

	close(release)
	<-done

	if dispatched != 1 {
		t.Errorf("service saw %d dispatches, want 1", dispatched)
	}
	if got := len(engine.Snapshot().Messages); got != 2 {
		t.Errorf("timeline has %d messages after resolution, want 2", got)
	}
}

func TestSelectSuggestionSendsText(t *testing.T) {
	var sent string
	svc := &stubService{
		sendFunc: func(ctx context.Context, message string) (*api.ChatReply, error) {
			sent = message
			return &api.ChatReply{Response: "ok"}, nil
		},
	}
	engine := newTestEngine(svc, Options{})

	if _, err := engine.SelectSuggestion(context.Background(), "Affiche mes dernières transactions"); err != nil {
		t.Fatalf("SelectSuggestion() error = %v", err)
	}
	if sent != "Affiche mes dernières transactions" {
		t.Errorf("service received %q", sent)
	}
}

func TestRefreshSuggestionsSoftFail(t *testing.T) {
	failing := false
	svc := &stubService{
		suggestionsFunc: func(ctx context.Context) ([]string, error) {
			if failing {
				return nil, errors.New("unavailable")
			}
			return []string{"Aide", "Solde"}, nil
		},
	}
	engine := newTestEngine(svc, Options{})

	if err := engine.RefreshSuggestions(context.Background()); err != nil {
		t.Fatalf("RefreshSuggestions() error = %v", err)
	}

	failing = true
	if err := engine.RefreshSuggestions(context.Background()); err == nil {
		t.Error("RefreshSuggestions() should report the fetch failure")
	}

	// The prior list survives the failure.
	state := engine.Snapshot()
	if len(state.Suggestions) != 2 {
		t.Errorf("suggestions = %v, want the prior list intact", state.Suggestions)
	}
}

func TestShouldShowSuggestionsDerivation(t *testing.T) {
	svc := &stubService{
		suggestionsFunc: func(ctx context.Context) ([]string, error) {
			return []string{"Aide"}, nil
		},
	}
	engine := newTestEngine(svc, Options{Mode: config.ModeWidget})

	if engine.Snapshot().ShouldShowSuggestions {
		t.Error("no suggestions yet, flag should be false")
	}

	engine.Open(context.Background(), &api.Identity{DisplayName: "Alice"})
	if err := engine.RefreshSuggestions(context.Background()); err != nil {
		t.Fatalf("RefreshSuggestions() error = %v", err)
	}

	if !engine.Snapshot().ShouldShowSuggestions {
		t.Error("welcome only, suggestions present: flag should be true")
	}

	if _, err := engine.Send(context.Background(), "solde"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if engine.Snapshot().ShouldShowSuggestions {
		t.Error("after the first user message the flag should be false")
	}
}

func TestSnapshotCapsVisibleSuggestions(t *testing.T) {
	many := []string{"a", "b", "c", "d", "e", "f"}
	svc := &stubService{
		suggestionsFunc: func(ctx context.Context) ([]string, error) { return many, nil },
	}

	tests := []struct {
		mode string
		want int
	}{
		{config.ModeWidget, 3},
		{config.ModeModal, 4},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			engine := newTestEngine(svc, Options{Mode: tt.mode})
			if err := engine.RefreshSuggestions(context.Background()); err != nil {
				t.Fatalf("RefreshSuggestions() error = %v", err)
			}
			if got := len(engine.Snapshot().Suggestions); got != tt.want {
				t.Errorf("visible suggestions = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMessageIDsStrictlyIncreasing(t *testing.T) {
	engine := newTestEngine(&stubService{}, Options{})

	for i := 0; i < 5; i++ {
		if _, err := engine.Send(context.Background(), fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	messages := engine.Snapshot().Messages
	var prev int64
	for _, msg := range messages {
		id, err := strconv.ParseInt(msg.ID, 10, 64)
		if err != nil {
			t.Fatalf("id %q is not numeric: %v", msg.ID, err)
		}
		if id <= prev {
			t.Fatalf("id %d not greater than predecessor %d", id, prev)
		}
		prev = id
	}
	if len(messages) != 10 {
		t.Errorf("got %d messages, want 10", len(messages))
	}
}

func TestResetAllowsReopen(t *testing.T) {
	engine := newTestEngine(&stubService{}, Options{Mode: config.ModeWidget})
	identity := &api.Identity{DisplayName: "Alice"}

	engine.Open(context.Background(), identity)
	if _, err := engine.Send(context.Background(), "solde"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	engine.Reset()
	if got := len(engine.Snapshot().Messages); got != 0 {
		t.Fatalf("after Reset got %d messages, want 0", got)
	}

	engine.Open(context.Background(), identity)
	state := engine.Snapshot()
	if len(state.Messages) != 1 {
		t.Errorf("after reopen got %d messages, want fresh welcome only", len(state.Messages))
	}
}

func TestRecorderSeesTimelineOrder(t *testing.T) {
	var recorded []Message
	engine := newTestEngine(&stubService{}, Options{})
	engine.SetRecorder(func(msg Message) { recorded = append(recorded, msg) })

	if _, err := engine.Send(context.Background(), "solde"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(recorded) != 2 {
		t.Fatalf("recorder saw %d messages, want 2", len(recorded))
	}
	if recorded[0].Role != RoleUser || recorded[1].Role != RoleAssistant {
		t.Errorf("recorder order = [%s, %s], want [user, assistant]", recorded[0].Role, recorded[1].Role)
	}
	if recorded[0].Timestamp.After(time.Now()) {
		t.Error("recorded timestamp in the future")
	}
}
