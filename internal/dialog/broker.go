package dialog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orgchart/internal/domain"
	"orgchart/internal/errs"
	"orgchart/internal/logging"
)

// PromptKind identifies which dialog a prompt opens
type PromptKind string

const (
	PromptEdit    PromptKind = "edit"
	PromptAdd     PromptKind = "add"
	PromptConfirm PromptKind = "confirm"
)

// Prompt is a dialog waiting for a remote answer
type Prompt struct {
	ID        string       `json:"id"`
	Kind      PromptKind   `json:"kind"`
	Edit      *EditRequest `json:"edit,omitempty"`
	Message   string       `json:"message,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Response answers a prompt. Cancelled dismisses it regardless of kind.
type Response struct {
	Cancelled bool        `json:"cancelled"`
	Edit      *EditResult `json:"edit,omitempty"`
	Add       *AddResult  `json:"add,omitempty"`
	Answer    Answer      `json:"answer,omitempty"`
}

type waiter struct {
	prompt Prompt
	ch     chan Response
}

// Broker implements Dialogs by publishing prompts and blocking until Resolve
// is called with the matching id.
type Broker struct {
	mu      sync.Mutex
	pending map[string]*waiter
	closed  bool
	publish func(Prompt)
	logger  *zap.Logger
}

var _ Dialogs = (*Broker)(nil)

// NewBroker creates a broker. publish is called for every new prompt.
func NewBroker(publish func(Prompt), logger *zap.Logger) *Broker {
	return &Broker{
		pending: make(map[string]*waiter),
		publish: publish,
		logger:  logging.OrNop(logger).Named("dialog"),
	}
}

// EditNode implements Editor
func (b *Broker) EditNode(ctx context.Context, req EditRequest) (EditResult, error) {
	resp, err := b.ask(ctx, Prompt{Kind: PromptEdit, Edit: &req})
	if err != nil {
		return EditResult{}, err
	}
	return *resp.Edit, nil
}

// AddNode implements Adder
func (b *Broker) AddNode(ctx context.Context) (AddResult, error) {
	resp, err := b.ask(ctx, Prompt{Kind: PromptAdd})
	if err != nil {
		return AddResult{}, err
	}
	return *resp.Add, nil
}

// Confirm implements Confirmer
func (b *Broker) Confirm(ctx context.Context, message string) (Answer, error) {
	resp, err := b.ask(ctx, Prompt{Kind: PromptConfirm, Message: message})
	if err != nil {
		return AnswerCancel, err
	}
	return resp.Answer, nil
}

// Pending returns the open prompts, oldest first
func (b *Broker) Pending() []Prompt {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Prompt, 0, len(b.pending))
	for _, w := range b.pending {
		out = append(out, w.prompt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Resolve answers the prompt with id
func (b *Broker) Resolve(id string, resp Response) error {
	b.mu.Lock()
	w, ok := b.pending[id]
	if !ok {
		b.mu.Unlock()
		return errs.NotFound("resolve prompt", "prompt "+id)
	}
	if err := checkResponse(w.prompt.Kind, resp); err != nil {
		b.mu.Unlock()
		return errs.Invalid("resolve prompt", err)
	}
	delete(b.pending, id)
	b.mu.Unlock()

	w.ch <- resp
	return nil
}

// Close cancels every open prompt and rejects new ones
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, w := range b.pending {
		delete(b.pending, id)
		w.ch <- Response{Cancelled: true}
	}
}

func (b *Broker) ask(ctx context.Context, p Prompt) (Response, error) {
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now()
	w := &waiter{prompt: p, ch: make(chan Response, 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Response{}, ErrCancelled
	}
	b.pending[p.ID] = w
	b.mu.Unlock()

	b.logger.Debug("prompt opened", zap.String("id", p.ID), zap.String("kind", string(p.Kind)))
	if b.publish != nil {
		b.publish(p)
	}

	select {
	case resp := <-w.ch:
		if resp.Cancelled {
			return Response{}, ErrCancelled
		}
		return resp, nil
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, p.ID)
		b.mu.Unlock()
		return Response{}, ctx.Err()
	}
}

func checkResponse(kind PromptKind, resp Response) error {
	if resp.Cancelled {
		return nil
	}
	switch kind {
	case PromptEdit:
		if resp.Edit == nil {
			return fmt.Errorf("edit prompt needs an edit result")
		}
		if resp.Edit.Method == MethodSave && resp.Edit.Status == "" {
			return fmt.Errorf("status is required for save")
		}
		return domain.Validate(resp.Edit)
	case PromptAdd:
		if resp.Add == nil {
			return fmt.Errorf("add prompt needs an add result")
		}
		return domain.Validate(resp.Add)
	case PromptConfirm:
		if resp.Answer != AnswerConfirm && resp.Answer != AnswerCancel {
			return fmt.Errorf("answer must be %q or %q", AnswerConfirm, AnswerCancel)
		}
	}
	return nil
}
