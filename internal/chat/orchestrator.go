// Package chat owns the question/answer transcript and the single-flight
// submission lifecycle behind the Ask AI screen.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kingrea/adaapt/internal/api"
	"github.com/kingrea/adaapt/internal/selection"
)

// AnswerFailed is the assistant error text used when the service gives no
// better explanation.
const AnswerFailed = "Sorry, I could not get an answer. Please try again."

var (
	// ErrEmptyQuery is returned for blank questions; nothing is appended.
	ErrEmptyQuery = errors.New("chat: query is empty")
	// ErrBusy is returned while an answer is still pending.
	ErrBusy = errors.New("chat: an answer is already pending")
	// ErrStale is returned when settling a turn that is not the pending one.
	ErrStale = errors.New("chat: no matching pending turn")
)

// Kind tags a transcript entry.
type Kind int

const (
	KindUser Kind = iota
	KindAssistant
)

func (k Kind) String() string {
	if k == KindAssistant {
		return "assistant"
	}
	return "user"
}

// Message is one transcript entry. User entries carry Text; assistant
// entries carry Answer, whose Error field is set for failed turns.
type Message struct {
	ID     string
	Kind   Kind
	Text   string
	Answer api.Answer
	At     time.Time
}

// Failed reports whether an assistant entry is the error shape.
func (m Message) Failed() bool {
	return m.Kind == KindAssistant && m.Answer.Error != ""
}

// Answerer is the remote answering service.
type Answerer interface {
	Query(ctx context.Context, in api.QueryRequest) (api.Answer, error)
}

// Pending identifies the turn started by Begin.
type Pending struct {
	ID      string
	Request api.QueryRequest
}

// Orchestrator is safe for concurrent use. The transcript only ever grows.
type Orchestrator struct {
	answerer Answerer
	logger   *zap.Logger
	clock    func() time.Time

	mu         sync.Mutex
	transcript []Message
	pending    string
	selected   selection.Set
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// New builds an orchestrator answering through a.
func New(a Answerer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		answerer: a,
		logger:   zap.NewNop(),
		clock:    time.Now,
		selected: selection.Set{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Begin validates text, appends the user turn and marks the orchestrator
// as sending. The returned Pending must be passed to Settle.
func (o *Orchestrator) Begin(text string) (Pending, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Pending{}, ErrEmptyQuery
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending != "" {
		return Pending{}, ErrBusy
	}
	msg := Message{ID: uuid.NewString(), Kind: KindUser, Text: text, At: o.clock()}
	o.transcript = append(o.transcript, msg)
	o.pending = msg.ID
	req := api.QueryRequest{Query: text, DomainIDs: o.selected.IDs()}
	o.logger.Info("query submitted",
		zap.String("turn", msg.ID),
		zap.Int("domains", len(req.DomainIDs)),
	)
	return Pending{ID: msg.ID, Request: req}, nil
}

// Settle appends exactly one assistant turn for p and clears sending. A
// transport or server error becomes an assistant entry in the error shape.
func (o *Orchestrator) Settle(p Pending, answer api.Answer, err error) (Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == "" || o.pending != p.ID {
		return Message{}, ErrStale
	}
	if err != nil {
		answer = api.Answer{Error: api.Describe(err, AnswerFailed)}
		o.logger.Warn("query failed", zap.String("turn", p.ID), zap.Error(err))
	} else if strings.TrimSpace(answer.Answer) == "" && answer.Error == "" {
		answer.Error = AnswerFailed
	}
	msg := Message{ID: uuid.NewString(), Kind: KindAssistant, Answer: answer, At: o.clock()}
	o.transcript = append(o.transcript, msg)
	o.pending = ""
	o.logger.Info("query settled",
		zap.String("turn", p.ID),
		zap.Bool("failed", msg.Failed()),
		zap.Int("sources", len(answer.Sources)),
	)
	return msg, nil
}

// Submit runs a full turn: Begin, the remote query, Settle.
func (o *Orchestrator) Submit(ctx context.Context, text string) (Message, error) {
	p, err := o.Begin(text)
	if err != nil {
		return Message{}, err
	}
	answer, err := o.Ask(ctx, p)
	return o.Settle(p, answer, err)
}

// Ask sends p's request to the answering service. It does not touch the
// transcript, so callers may run it off the UI goroutine and Settle later.
func (o *Orchestrator) Ask(ctx context.Context, p Pending) (api.Answer, error) {
	if o.answerer == nil {
		return api.Answer{}, errors.New("chat: no answering service configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return o.answerer.Query(ctx, p.Request)
}

// Transcript returns a copy of every turn in append order.
func (o *Orchestrator) Transcript() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.transcript...)
}

// Len is the number of turns.
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.transcript)
}

// Sending reports whether an answer is pending.
func (o *Orchestrator) Sending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending != ""
}

// Chatting reports whether the conversation has started. Once true it stays
// true for the life of the orchestrator.
func (o *Orchestrator) Chatting() bool {
	return o.Len() > 0
}

// Selection returns a copy of the domains questions are scoped to.
func (o *Orchestrator) Selection() selection.Set {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selected.Clone()
}

// SetSelection replaces the scoped domains. Turns already pending keep the
// scope they were started with.
func (o *Orchestrator) SetSelection(s selection.Set) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s == nil {
		s = selection.Set{}
	}
	o.selected = s.Clone()
}
