// Package submit persists a wizard's documents: it plans the writes, runs
// them concurrently, and reports the outcome with exactly one notification.
package submit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/meshwiz/internal/hooks"
	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/mark3labs/meshwiz/internal/notify"
	"github.com/mark3labs/meshwiz/internal/synth"
	"github.com/mark3labs/meshwiz/internal/template"
	"github.com/mark3labs/meshwiz/internal/wizard"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

var log = logger.With("submit")

var (
	// ErrInProgress is returned while another submission is running.
	ErrInProgress = errors.New("submission already in progress")
	// ErrInvalid is returned for a wizard that does not pass validation.
	ErrInvalid = errors.New("wizard is not valid")
)

// Store performs the writes.
type Store interface {
	Create(ctx context.Context, namespace, kind string, obj any) error
	Update(ctx context.Context, namespace, kind, name string, obj any) error
	Delete(ctx context.Context, namespace, kind, name string) error
}

// Options tune a Submitter.
type Options struct {
	// Rollback deletes the resources a failed submission created.
	Rollback bool
	Messages template.Messages
	Hooks    *hooks.Config
	WorkDir  string
	Session  string
}

// Request is what gets submitted. OnStart, when set, runs once the
// submission is accepted and before any write.
type Request struct {
	State    wizard.State
	Previews synth.PreviewSet
	OnStart  func(ctx context.Context) error
}

// Result reports a finished submission. Changed is always true so the
// caller closes the wizard and refreshes its view.
type Result struct {
	Changed      bool
	Operations   []Operation
	RolledBack   []Operation
	Err          error
	Notification notify.Notification
	HookOutput   string
}

// Failed returns the operations that did not succeed.
func (r Result) Failed() []Operation {
	var out []Operation
	for _, op := range r.Operations {
		if op.Err != nil {
			out = append(out, op)
		}
	}
	return out
}

// Submitter runs one submission at a time.
type Submitter struct {
	store    Store
	notifier notify.Notifier
	opts     Options

	mu      sync.Mutex
	running bool
}

// New creates a Submitter writing to store and reporting to notifier.
func New(store Store, notifier notify.Notifier, opts Options) *Submitter {
	opts.Messages = opts.Messages.WithDefaults()
	if notifier == nil {
		notifier = notify.Log{}
	}
	return &Submitter{store: store, notifier: notifier, opts: opts}
}

func (s *Submitter) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Submitter) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Submit writes every planned document concurrently and waits for all of
// them. Persistence failures land in Result.Err; the returned error is only
// set when nothing was attempted.
func (s *Submitter) Submit(ctx context.Context, req Request) (Result, error) {
	st := req.State
	if !st.Open {
		return Result{}, wizard.ErrNotOpen
	}
	if !wizard.IsValid(st) {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(st.Valid.Invalid(), ", "))
	}
	if !s.acquire() {
		return Result{}, ErrInProgress
	}
	defer s.release()

	ops := Plan(st, req.Previews)

	vars := hooks.Variables{
		Namespace: st.Inputs.Namespace,
		Service:   st.Inputs.ServiceName,
		Wizard:    string(st.Inputs.Type),
		Session:   s.opts.Session,
	}
	var hookOutput []string
	if s.opts.Hooks != nil {
		docs, err := Documents(ops)
		if err != nil {
			return Result{}, err
		}
		vars.Documents = docs
		out, err := hooks.ExecuteAll(ctx, s.opts.Hooks.Hooks.PreSubmit, s.opts.WorkDir, vars)
		if err != nil {
			// Nothing was written and the wizard stays open.
			return Result{HookOutput: out}, err
		}
		if out != "" {
			hookOutput = append(hookOutput, out)
		}
	}

	if req.OnStart != nil {
		if err := req.OnStart(ctx); err != nil {
			return Result{}, fmt.Errorf("start submission: %w", err)
		}
	}

	log.Info("submitting %d operations for %s/%s", len(ops), st.Inputs.Namespace, st.Inputs.ServiceName)

	// Every write runs to completion; one failure does not cancel the others.
	var g errgroup.Group
	for i := range ops {
		op := &ops[i]
		g.Go(func() error {
			op.Err = s.apply(ctx, *op)
			if op.Err != nil {
				log.Warn("%s failed: %v", op, op.Err)
			} else {
				log.Debug("%s done", op)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Changed: true, Operations: ops}
	var errs []error
	for _, op := range ops {
		if op.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", op, op.Err))
		}
	}
	res.Err = utilerrors.NewAggregate(errs)

	if res.Err != nil && s.opts.Rollback {
		res.RolledBack = s.rollback(ctx, ops)
	}

	res.Notification = s.notification(st, errs)
	if err := s.notifier.Notify(ctx, res.Notification); err != nil {
		log.Warn("notification failed: %v", err)
	}

	if s.opts.Hooks != nil {
		vars.Result = "success"
		if res.Err != nil {
			vars.Result = "failure"
		}
		out, err := hooks.ExecuteAll(ctx, s.opts.Hooks.Hooks.PostSubmit, s.opts.WorkDir, vars)
		if err != nil {
			log.Warn("post_submit hooks interrupted: %v", err)
		} else if out != "" {
			hookOutput = append(hookOutput, out)
		}
	}
	res.HookOutput = strings.Join(hookOutput, "\n")
	return res, nil
}

func (s *Submitter) apply(ctx context.Context, op Operation) error {
	switch op.Op {
	case synth.OpCreate:
		return s.store.Create(ctx, op.Namespace, op.Kind, op.Object)
	case synth.OpUpdate:
		return s.store.Update(ctx, op.Namespace, op.Kind, op.Name, op.Object)
	case synth.OpDelete:
		return s.store.Delete(ctx, op.Namespace, op.Kind, op.Name)
	}
	return fmt.Errorf("unknown operation %q", op.Op)
}

// rollback deletes what a failed submission created. It is best effort:
// failures are logged and the resource is left behind.
func (s *Submitter) rollback(ctx context.Context, ops []Operation) []Operation {
	var undone []Operation
	for _, op := range ops {
		if op.Op != synth.OpCreate || op.Err != nil {
			continue
		}
		undo := Operation{Op: synth.OpDelete, Kind: op.Kind, Namespace: op.Namespace, Name: op.Name}
		if undo.Err = s.apply(ctx, undo); undo.Err != nil {
			log.Error("rollback of %s failed: %v", op, undo.Err)
		} else {
			log.Info("rolled back %s", op)
		}
		undone = append(undone, undo)
	}
	return undone
}

func (s *Submitter) notification(st wizard.State, errs []error) notify.Notification {
	vars := template.ForState(st, s.opts.Session)
	n := notify.Notification{
		Namespace: st.Inputs.Namespace,
		Service:   st.Inputs.ServiceName,
		Time:      time.Now(),
	}
	if len(errs) == 0 {
		n.Severity = notify.Success
		n.Message = template.Render(s.opts.Messages.Success, vars)
		return n
	}
	vars.Errors = template.FormatErrors(errs)
	n.Severity = notify.Error
	n.Message = template.Render(s.opts.Messages.Failure, vars)
	for _, err := range errs {
		n.Details = append(n.Details, err.Error())
	}
	return n
}
