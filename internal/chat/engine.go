package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"bankassist/internal/api"
	"bankassist/internal/config"
)

// Sentinel results for rejected sends. Neither leaves a trace in the
// timeline; the call is a no-op.
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a request is already in flight")
)

// Fixed user-facing fallbacks for a failed assistant call. The first covers a
// reachable service that answered with an error status, the second a service
// that could not be reached at all.
const (
	fallbackServiceError = "Désolé, une erreur s'est produite. Veuillez réessayer."
	fallbackUnreachable  = "Erreur de connexion. Veuillez vérifier votre connexion internet."
)

// Service is the slice of the remote API the engine needs.
type Service interface {
	SendMessage(ctx context.Context, message string) (*api.ChatReply, error)
	Suggestions(ctx context.Context) ([]string, error)
}

// Options parameterize the one engine shared by the small persistent widget
// and the full-screen modal.
type Options struct {
	Mode                  string // config.ModeWidget or config.ModeModal
	MaxVisibleSuggestions int
}

// State is a read-only snapshot of the conversation for rendering.
type State struct {
	Messages    []Message
	Suggestions []string
	Pending     bool
	// Suggestions collapse once the user has spoken; derived, never stored.
	ShouldShowSuggestions bool
}

// Engine owns the message timeline, the suggestion list and the request
// lifecycle of the assistant dialogue. It is either Idle or Awaiting: at most
// one request may be in flight, and a second Send while Awaiting is rejected
// rather than queued so replies can never interleave out of order.
type Engine struct {
	svc      Service
	opts     Options
	logger   *slog.Logger
	recorder func(Message)

	mu          sync.Mutex
	opened      bool
	pending     bool
	messages    []Message
	suggestions []string
	lastID      int64
}

func NewEngine(svc Service, opts Options, logger *slog.Logger) *Engine {
	if opts.MaxVisibleSuggestions <= 0 {
		if opts.Mode == config.ModeWidget {
			opts.MaxVisibleSuggestions = 3
		} else {
			opts.MaxVisibleSuggestions = 4
		}
	}
	return &Engine{svc: svc, opts: opts, logger: logger}
}

// SetRecorder registers a sink that receives every appended message, in
// timeline order. Used for the audit transcript.
func (e *Engine) SetRecorder(recorder func(Message)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = recorder
}

// Open initializes the timeline with the welcome message personalized for
// the identity, then fetches suggestions in the background. Re-opening an
// already-open conversation is a no-op, so the welcome is never duplicated.
func (e *Engine) Open(ctx context.Context, identity *api.Identity) {
	e.mu.Lock()
	if e.opened {
		e.mu.Unlock()
		return
	}
	e.opened = true
	welcome := e.appendLocked(Message{
		Role:    RoleAssistant,
		Content: welcomeText(e.opts.Mode, identity),
	})
	e.mu.Unlock()

	e.record(welcome)
	e.logger.Info("conversation opened", "mode", e.opts.Mode)

	go func() {
		if err := e.RefreshSuggestions(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("initial suggestion fetch failed", "error", err)
		}
	}()
}

// Send dispatches one user message and appends the assistant's reply (or an
// error bubble) when it resolves. Blank text and sends issued while a request
// is in flight are rejected before any network activity. The user message is
// appended synchronously, so it is visible regardless of network latency.
func (e *Engine) Send(ctx context.Context, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	e.mu.Lock()
	if e.pending {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	e.pending = true
	userMsg := e.appendLocked(Message{
		Role:    RoleUser,
		Content: text,
	})
	e.mu.Unlock()

	e.record(userMsg)

	reply, err := e.svc.SendMessage(ctx, text)

	e.mu.Lock()
	e.pending = false
	var botMsg Message
	if err != nil {
		botMsg = e.appendLocked(Message{
			Role:    RoleAssistant,
			Content: fallbackFor(err),
			IsError: true,
		})
	} else {
		botMsg = e.appendLocked(Message{
			Role:           RoleAssistant,
			Content:        reply.Response,
			Intent:         reply.Intent,
			Entities:       reply.Entities,
			ActionRequired: reply.ActionRequired,
		})
	}
	e.mu.Unlock()

	e.record(botMsg)

	if err != nil {
		e.logger.Warn("assistant call failed", "error", err)
	} else {
		e.logger.Info("assistant replied", "intent", reply.Intent, "action_required", reply.ActionRequired)
	}
	return &botMsg, nil
}

// SelectSuggestion sends the suggestion's text as a regular message.
func (e *Engine) SelectSuggestion(ctx context.Context, text string) (*Message, error) {
	return e.Send(ctx, text)
}

// RefreshSuggestions fetches and wholesale-replaces the suggestion list.
// Failure leaves the prior list untouched: suggestions are a soft-fail
// feature and their absence never blocks conversation.
func (e *Engine) RefreshSuggestions(ctx context.Context) error {
	suggestions, err := e.svc.Suggestions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch suggestions: %w", err)
	}

	e.mu.Lock()
	e.suggestions = suggestions
	e.mu.Unlock()

	e.logger.Info("suggestions refreshed", "count", len(suggestions))
	return nil
}

// Snapshot returns a copy of the conversation state for rendering.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	messages := make([]Message, len(e.messages))
	copy(messages, e.messages)

	visible := e.suggestions
	if len(visible) > e.opts.MaxVisibleSuggestions {
		visible = visible[:e.opts.MaxVisibleSuggestions]
	}
	suggestions := make([]string, len(visible))
	copy(suggestions, visible)

	return State{
		Messages:              messages,
		Suggestions:           suggestions,
		Pending:               e.pending,
		ShouldShowSuggestions: len(suggestions) > 0 && len(messages) <= 1,
	}
}

// Pending reports whether a request is in flight.
func (e *Engine) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// Reset discards the whole conversation. Called on logout; a later Open
// starts a fresh timeline.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = false
	e.pending = false
	e.messages = nil
	e.suggestions = nil
}

// appendLocked stamps id and timestamp and appends to the timeline.
// Ids are millisecond timestamps with a monotonic tiebreak, so the timeline
// stays orderable even when two messages land in the same millisecond.
// Caller holds e.mu.
func (e *Engine) appendLocked(msg Message) Message {
	now := time.Now()
	id := now.UnixMilli()
	if id <= e.lastID {
		id = e.lastID + 1
	}
	e.lastID = id

	msg.ID = strconv.FormatInt(id, 10)
	msg.Timestamp = now
	e.messages = append(e.messages, msg)
	return msg
}

func (e *Engine) record(msg Message) {
	e.mu.Lock()
	recorder := e.recorder
	e.mu.Unlock()
	if recorder != nil {
		recorder(msg)
	}
}

func fallbackFor(err error) string {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return fallbackServiceError
	}
	return fallbackUnreachable
}

func welcomeText(mode string, identity *api.Identity) string {
	name := "cher client"
	if identity != nil && identity.DisplayName != "" {
		name = identity.DisplayName
	}
	if mode == config.ModeWidget {
		return fmt.Sprintf("Bonjour %s ! Je suis votre assistant bancaire virtuel d'Amen Bank. Comment puis-je vous aider aujourd'hui ?", name)
	}
	return fmt.Sprintf("Bonjour %s ! 👋\n\n"+
		"Je suis votre assistant bancaire intelligent d'Amen Bank. Je peux vous aider avec :\n\n"+
		"💰 Consultation de vos comptes\n"+
		"📊 Analyse de vos transactions\n"+
		"💸 Virements et transferts\n"+
		"🏦 Demandes de crédit\n"+
		"📈 Conseils financiers personnalisés\n\n"+
		"Comment puis-je vous assister aujourd'hui ?", name)
}
