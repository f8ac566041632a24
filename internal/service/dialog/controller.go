package dialog

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-invoice/backend/internal/logging"
	dialogmodel "github.com/zhouzirui/z-invoice/backend/internal/model/dialog"
	"github.com/zhouzirui/z-invoice/backend/internal/model/invoice"
	"github.com/zhouzirui/z-invoice/backend/internal/observability"
	"github.com/zhouzirui/z-invoice/backend/internal/service/generation"
)

const (
	defaultGenerationTimeout = 60 * time.Second
	defaultLockWait          = 90 * time.Second
)

// Options tune a Controller. Zero values pick the defaults.
type Options struct {
	GenerationTimeout time.Duration
	LockWait          time.Duration
	Logger            *logging.Logger
	Metrics           *observability.DialogMetrics

	// Now, IntN and NewKey replace the clock, the invoice number source and
	// the session key minter.
	Now    func() time.Time
	IntN   func(n int) int
	NewKey func() string
}

// Controller drives slot-filling dialogs over a session store.
type Controller struct {
	client            generation.Client
	store             dialogmodel.Store
	generationTimeout time.Duration
	lockWait          time.Duration
	log               *logging.Logger
	metrics           *observability.DialogMetrics
	now               func() time.Time
	intN              func(int) int
	newKey            func() string
}

// NewController wires a controller to its generation client and store.
func NewController(client generation.Client, store dialogmodel.Store, opts Options) *Controller {
	c := &Controller{
		client:            client,
		store:             store,
		generationTimeout: opts.GenerationTimeout,
		lockWait:          opts.LockWait,
		log:               opts.Logger,
		metrics:           opts.Metrics,
		now:               opts.Now,
		intN:              opts.IntN,
		newKey:            opts.NewKey,
	}
	if c.generationTimeout <= 0 {
		c.generationTimeout = defaultGenerationTimeout
	}
	if c.lockWait <= 0 {
		c.lockWait = defaultLockWait
	}
	if c.log == nil {
		c.log = logging.Nop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.intN == nil {
		c.intN = rand.IntN
	}
	if c.newKey == nil {
		c.newKey = uuid.NewString
	}
	return c
}

// ProcessTurn advances the dialog identified by sessionKey with one
// transcript. An empty or unknown key starts a new dialog.
func (c *Controller) ProcessTurn(ctx context.Context, sessionKey, transcript string) Outcome {
	out := c.processTurn(ctx, strings.TrimSpace(sessionKey), strings.TrimSpace(transcript))

	c.metrics.RecordTurn(out.outcome())
	if f, ok := out.(*Failed); ok {
		c.metrics.RecordFailure(string(f.Kind))
		c.log.Warn().
			Str("session", f.SessionKey).
			Str("kind", string(f.Kind)).
			Str("reason", f.Reason).
			Msg("turn failed")
	}
	return out
}

func (c *Controller) processTurn(ctx context.Context, sessionKey, transcript string) Outcome {
	if transcript == "" {
		return &Failed{Kind: FailureInvalidInput, Reason: "transcript is required", SessionKey: sessionKey}
	}
	if sessionKey == "" {
		sessionKey = c.newKey()
	}

	lockCtx, cancel := context.WithTimeout(ctx, c.lockWait)
	lease, err := c.store.Acquire(lockCtx, sessionKey, func() *dialogmodel.Session {
		now := c.now()
		return dialogmodel.NewSession(sessionKey, formatInvoiceID(now, c.intN(1000)), now)
	})
	cancel()
	if err != nil {
		return &Failed{
			Kind:       FailureSessionBusy,
			Reason:     fmt.Sprintf("another turn is still running for this session: %v", err),
			SessionKey: sessionKey,
		}
	}
	defer lease.Release()

	sess := lease.Session()
	log := c.log.With("session", sessionKey)
	if lease.Created() {
		log.Info().Str("invoice_id", sess.InvoiceID).Msg("session started")
	}

	stamp := c.stamp(sess)
	result, err := c.generate(ctx, &generation.Request{
		Context: turnContext(sess, transcript),
		Stamp:   stamp,
		Stage:   generation.StageTurn,
	})
	if err != nil {
		return &Failed{Kind: classify(err), Reason: err.Error(), SessionKey: sessionKey}
	}

	now := c.now()
	switch result.Kind {
	case generation.KindInvoice:
		c.finish(lease, "completed")
		log.Info().Str("invoice_id", result.Invoice.InvoiceID).Msg("invoice ready")
		return &InvoiceReady{SessionKey: sessionKey, Invoice: result.Invoice}

	case generation.KindQuestions:
		if sess.Phase == dialogmodel.PhaseAwaitingFirstInput {
			if err := sess.BeginQuestions(transcript, result.Questions, now); err != nil {
				return &Failed{Kind: FailureContractViolation, Reason: err.Error(), SessionKey: sessionKey}
			}
			log.Debug().Int("questions", len(sess.PendingQuestions)).Msg("questions issued")
			return needsInput(sess)
		}

		if err := sess.RecordAnswer(transcript, now); err != nil {
			c.finish(lease, "internal_error")
			return &Failed{Kind: FailureInternal, Reason: err.Error()}
		}
		log.Debug().
			Str("phase", string(sess.Phase)).
			Int("cursor", sess.Cursor).
			Int("questions", len(sess.PendingQuestions)).
			Msg("answer recorded")
		if sess.Exhausted() {
			return c.finalize(ctx, lease, stamp)
		}
		return needsInput(sess)

	default:
		return &Failed{
			Kind:       FailureContractViolation,
			Reason:     fmt.Sprintf("unexpected result kind %q", result.Kind),
			SessionKey: sessionKey,
		}
	}
}

// finalize asks for the invoice once every question is answered. The
// session is removed whatever the result.
func (c *Controller) finalize(ctx context.Context, lease dialogmodel.Lease, stamp invoice.Stamp) Outcome {
	sess := lease.Session()
	key := sess.Key

	result, err := c.generate(ctx, &generation.Request{
		Context: finalContext(sess),
		Stamp:   stamp,
		Stage:   generation.StageFinalize,
	})
	if err != nil {
		c.finish(lease, "finalization_failed")
		return &Failed{Kind: FailureFinalization, Reason: fmt.Sprintf("failed to generate invoice: %v", err)}
	}
	if result.Kind != generation.KindInvoice {
		c.finish(lease, "finalization_failed")
		return &Failed{Kind: FailureFinalization, Reason: "model asked further questions after every question was answered"}
	}

	c.finish(lease, "completed")
	c.log.Info().Str("session", key).Str("invoice_id", result.Invoice.InvoiceID).Msg("invoice ready")
	return &InvoiceReady{SessionKey: key, Invoice: result.Invoice}
}

func (c *Controller) finish(lease dialogmodel.Lease, reason string) {
	lease.Session().Complete(c.now())
	lease.Remove()
	c.metrics.RecordEvictions(reason, 1)
}

func (c *Controller) generate(ctx context.Context, req *generation.Request) (*generation.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.generationTimeout)
	defer cancel()

	start := time.Now()
	result, err := c.client.Generate(ctx, req)
	if err == nil && result == nil {
		err = &generation.ContractError{Reason: "empty result"}
	}
	if err == nil && result.Kind == generation.KindInvoice && result.Invoice == nil {
		err = &generation.ContractError{Reason: "invoice result without invoice"}
	}

	status := "ok"
	if err != nil {
		status = generationStatus(classify(err))
	}
	c.metrics.RecordGeneration(string(req.Stage), status, time.Since(start))
	return result, err
}

func (c *Controller) stamp(sess *dialogmodel.Session) invoice.Stamp {
	now := c.now()
	return invoice.Stamp{
		InvoiceID:  sess.InvoiceID,
		Date:       now.Format(time.DateOnly),
		TimeWindow: timeWindow(now),
	}
}

// Inspect returns the last committed state of a live session.
func (c *Controller) Inspect(sessionKey string) (dialogmodel.Snapshot, bool) {
	return c.store.Peek(sessionKey)
}

// Abandon removes a session, waiting for an in-flight turn to finish first.
func (c *Controller) Abandon(ctx context.Context, sessionKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.lockWait)
	defer cancel()

	removed, err := c.store.Delete(ctx, sessionKey)
	if err != nil {
		return false, err
	}
	if removed {
		c.metrics.RecordEvictions("abandoned", 1)
		c.log.Info().Str("session", sessionKey).Msg("session abandoned")
	}
	return removed, nil
}

func needsInput(sess *dialogmodel.Session) *NeedsInput {
	return &NeedsInput{
		SessionKey:     sess.Key,
		Question:       sess.CurrentQuestion(),
		QuestionNumber: sess.Cursor + 1,
		TotalQuestions: len(sess.PendingQuestions),
		Questions:      append([]string(nil), sess.PendingQuestions...),
	}
}

func classify(err error) FailureKind {
	switch {
	case errors.Is(err, generation.ErrContractViolation):
		return FailureContractViolation
	case errors.Is(err, context.DeadlineExceeded):
		return FailureUpstreamTimeout
	default:
		return FailureUpstreamUnavailable
	}
}

func generationStatus(kind FailureKind) string {
	switch kind {
	case FailureContractViolation:
		return "contract_violation"
	case FailureUpstreamTimeout:
		return "timeout"
	default:
		return "unavailable"
	}
}
