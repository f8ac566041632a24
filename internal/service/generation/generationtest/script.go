// Package generationtest provides a scripted generation.Client for tests.
package generationtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/zhouzirui/z-invoice/backend/internal/model/invoice"
	"github.com/zhouzirui/z-invoice/backend/internal/service/generation"
)

// Step is one scripted reply. Exactly one of Result, Err or Block is used.
type Step struct {
	Result *generation.Result
	Err    error
	// Block waits for ctx to end and returns its error.
	Block bool
	// Gate, when set, is waited on before the step returns.
	Gate <-chan struct{}
}

// Script replays steps in order and records every request.
type Script struct {
	mu       sync.Mutex
	steps    []Step
	requests []generation.Request
	started  chan struct{}
}

// New returns a Script that replays steps.
func New(steps ...Step) *Script {
	return &Script{steps: steps, started: make(chan struct{}, 64)}
}

// Push appends more steps.
func (s *Script) Push(steps ...Step) {
	s.mu.Lock()
	s.steps = append(s.steps, steps...)
	s.mu.Unlock()
}

// Started receives once per Generate call, after the request is recorded.
func (s *Script) Started() <-chan struct{} {
	return s.started
}

// Requests returns a copy of the recorded requests.
func (s *Script) Requests() []generation.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]generation.Request(nil), s.requests...)
}

// Calls reports how many requests were made.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Script) Generate(ctx context.Context, req *generation.Request) (*generation.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, *req)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("generationtest: no scripted step for call %d", len(s.requests))
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	select {
	case s.started <- struct{}{}:
	default:
	}

	if step.Gate != nil {
		select {
		case <-step.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Result != nil && step.Result.Kind == generation.KindInvoice && step.Result.Invoice != nil {
		inv := *step.Result.Invoice
		inv.ApplyStamp(req.Stamp)
		return &generation.Result{Kind: generation.KindInvoice, Invoice: &inv}, nil
	}
	return step.Result, nil
}

var _ generation.Client = (*Script)(nil)

// Questions builds a questions result.
func Questions(qs ...string) Step {
	current := ""
	if len(qs) > 0 {
		current = qs[0]
	}
	return Step{Result: &generation.Result{
		Kind:            generation.KindQuestions,
		Questions:       qs,
		CurrentQuestion: current,
	}}
}

// Invoice builds an invoice result for a single line item.
func Invoice(client string, total float64) Step {
	return Step{Result: &generation.Result{
		Kind: generation.KindInvoice,
		Invoice: &invoice.Invoice{
			Client:   client,
			Items:    []invoice.LineItem{{Name: "Labor", Qty: 1, UnitPrice: total}},
			Subtotal: total,
			Total:    total,
			Summary:  "Work completed.",
		},
	}}
}

// Fail builds an error step.
func Fail(err error) Step {
	return Step{Err: err}
}
