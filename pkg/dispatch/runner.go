package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/normalize"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/session"
)

// SessionFactory creates the session a batch runs on.
type SessionFactory interface {
	Create(ctx context.Context, cred session.Credential, opts ...session.Option) (*session.Session, error)
}

// Batch is one invocation: a single action applied to every item.
type Batch struct {
	Owner          string
	Action         Action
	Credential     session.Credential
	Items          []Params
	ContinueOnFail bool
}

// ItemResult holds the records one item produced. A failed item in
// continue-on-fail mode holds a single failure record and Err.
type ItemResult struct {
	Index   int                `json:"index"`
	Records []normalize.Record `json:"records"`
	Err     error              `json:"-"`
}

// ItemError reports the item that aborted a strict batch.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

type Runner struct {
	Sessions     SessionFactory
	Dispatcher   *Dispatcher
	ReadyTimeout time.Duration
}

// Run creates one session, processes the items in order and closes the session
// on every path. In strict mode the first failure stops the batch and the
// results so far are returned with an *ItemError.
func (r *Runner) Run(ctx context.Context, b Batch) ([]ItemResult, error) {
	if !r.Dispatcher.Supports(b.Action) {
		return nil, fmt.Errorf("%s: %w", b.Action, ErrUnknownAction)
	}
	if len(b.Items) == 0 {
		return []ItemResult{}, nil
	}

	logger := log.Action(b.Action.Resource, b.Action.Operation)

	opts := []session.Option{}
	if b.Owner != "" {
		opts = append(opts, session.WithOwner(b.Owner))
	}
	s, err := r.Sessions.Create(ctx, b.Credential, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release session")
		}
	}()

	if err := s.AwaitReady(ctx, r.ReadyTimeout); err != nil {
		return nil, err
	}

	client := s.Client()
	results := make([]ItemResult, 0, len(b.Items))
	for i, params := range b.Items {
		if err := ctx.Err(); err != nil {
			return results, &ItemError{Index: i, Err: err}
		}

		records, err := r.Dispatcher.Dispatch(ctx, client, b.Action, params)
		if err != nil {
			if !b.ContinueOnFail {
				return results, &ItemError{Index: i, Err: err}
			}
			logger.WithError(err).WithField("item", i).Warn("Item failed, continuing")
			results = append(results, ItemResult{
				Index:   i,
				Records: []normalize.Record{normalize.Failure(err)},
				Err:     err,
			})
			continue
		}
		results = append(results, ItemResult{Index: i, Records: records})
	}

	logger.WithField("items", len(b.Items)).Debug("Batch finished")
	return results, nil
}
