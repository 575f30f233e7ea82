package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgchart/internal/errs"
)

// promptRecorder hands published prompts to the test goroutine
type promptRecorder struct {
	ch chan Prompt
}

func newRecorder() *promptRecorder {
	return &promptRecorder{ch: make(chan Prompt, 8)}
}

func (r *promptRecorder) publish(p Prompt) { r.ch <- p }

func (r *promptRecorder) next(t *testing.T) Prompt {
	t.Helper()
	select {
	case p := <-r.ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("no prompt published")
		return Prompt{}
	}
}

func TestBrokerConfirm(t *testing.T) {
	rec := newRecorder()
	b := NewBroker(rec.publish, nil)

	var (
		answer Answer
		err    error
		wg     sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		answer, err = b.Confirm(context.Background(), "Delete this link?")
	}()

	p := rec.next(t)
	assert.Equal(t, PromptConfirm, p.Kind)
	assert.Equal(t, "Delete this link?", p.Message)
	assert.Len(t, b.Pending(), 1)

	require.NoError(t, b.Resolve(p.ID, Response{Answer: AnswerConfirm}))
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, AnswerConfirm, answer)
	assert.Empty(t, b.Pending())
}

func TestBrokerEditAndAdd(t *testing.T) {
	rec := newRecorder()
	b := NewBroker(rec.publish, nil)

	done := make(chan EditResult, 1)
	go func() {
		res, err := b.EditNode(context.Background(), EditRequest{NodeID: "n1", CurrentLabel: "Ada"})
		if err == nil {
			done <- res
		}
	}()

	p := rec.next(t)
	require.Equal(t, PromptEdit, p.Kind)
	assert.Equal(t, "n1", p.Edit.NodeID)
	require.NoError(t, b.Resolve(p.ID, Response{Edit: &EditResult{Method: MethodDelete}}))
	assert.Equal(t, MethodDelete, (<-done).Method)

	added := make(chan AddResult, 1)
	go func() {
		res, err := b.AddNode(context.Background())
		if err == nil {
			added <- res
		}
	}()

	p = rec.next(t)
	require.NoError(t, b.Resolve(p.ID, Response{Add: &AddResult{Label: "New hire", ParentID: "n1"}}))
	assert.Equal(t, AddResult{Label: "New hire", ParentID: "n1"}, <-added)
}

func TestBrokerCancelled(t *testing.T) {
	rec := newRecorder()
	b := NewBroker(rec.publish, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := b.AddNode(context.Background())
		errCh <- err
	}()

	p := rec.next(t)
	require.NoError(t, b.Resolve(p.ID, Response{Cancelled: true}))

	assert.True(t, errors.Is(<-errCh, ErrCancelled))
}

func TestBrokerRejectsBadResponses(t *testing.T) {
	rec := newRecorder()
	b := NewBroker(rec.publish, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.EditNode(ctx, EditRequest{NodeID: "n1"})
	p := rec.next(t)

	tests := []struct {
		name string
		resp Response
	}{
		{"missing result", Response{}},
		{"unknown method", Response{Edit: &EditResult{Method: "explode"}}},
		{"save without status", Response{Edit: &EditResult{Method: MethodSave}}},
		{"replace without selection", Response{Edit: &EditResult{Method: MethodReplace}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Resolve(p.ID, tt.resp)
			assert.True(t, errs.Is(err, errs.KindInvalid), "got %v", err)
		})
	}

	assert.True(t, errs.Is(b.Resolve("nope", Response{}), errs.KindNotFound))
	assert.Len(t, b.Pending(), 1)
}

func TestBrokerContextCancel(t *testing.T) {
	b := NewBroker(nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.Confirm(ctx, "sure?")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, b.Pending())
}

func TestBrokerClose(t *testing.T) {
	rec := newRecorder()
	b := NewBroker(rec.publish, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Confirm(context.Background(), "sure?")
		errCh <- err
	}()
	rec.next(t)

	b.Close()

	assert.ErrorIs(t, <-errCh, ErrCancelled)
	_, err := b.Confirm(context.Background(), "again?")
	assert.ErrorIs(t, err, ErrCancelled)
}
