// Package dialog coordinates modal confirmations and transient toasts
// without owning any presentation.  A caller blocks in Confirm or Alert; the
// presenting shell reads ActiveModal, shows it however it likes, and settles
// it with Resolve or Dismiss.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrModalActive is returned when a modal is requested while another is
// still awaiting its decision.
var ErrModalActive = errors.New("another modal is active")

// ToastType classifies a toast for presentation.
type ToastType string

const (
	ToastInfo    ToastType = "info"
	ToastSuccess ToastType = "success"
	ToastWarning ToastType = "warning"
	ToastError   ToastType = "error"
)

// DefaultToastDuration is how long a toast stays up when the caller passes
// no duration.
const DefaultToastDuration = 3 * time.Second

// Modal is a pending confirmation as the shell should present it.
type Modal struct {
	Title       string
	Message     string
	ConfirmText string
	CancelText  string
	ShowConfirm bool
	ShowCancel  bool
	ShowClose   bool
	ConfirmType string

	decision chan bool
}

// Toast is a transient notification.
type Toast struct {
	Message string
	Type    ToastType
}

// Coordinator multiplexes at most one modal and one toast.  The zero value
// is ready to use.
type Coordinator struct {
	mu         sync.Mutex
	modal      *Modal
	toast      *Toast
	toastTimer *time.Timer
	toastSeq   uint64
}

// Confirm presents a confirmation and blocks until the shell settles it or
// ctx is done.  It reports the decision: Resolve is true, Dismiss is false.
func (c *Coordinator) Confirm(ctx context.Context, message string, opt ...Option) (bool, error) {
	const op = "dialog.Coordinator.Confirm"
	opts := getModalOpts(opt...)
	modal := &Modal{
		Title:       opts.withTitle,
		Message:     message,
		ConfirmText: opts.withConfirmText,
		CancelText:  opts.withCancelText,
		ShowConfirm: true,
		ShowCancel:  true,
		ShowClose:   opts.withClose,
		ConfirmType: opts.withConfirmType,
		decision:    make(chan bool, 1),
	}
	if opts.withTitle == "" {
		modal.Title = "Confirm"
	}
	return c.await(ctx, op, modal)
}

// Alert presents a notice with only a confirm button and blocks until the
// shell settles it or ctx is done.  Dismissing an alert still settles it;
// there is nothing to reject.
func (c *Coordinator) Alert(ctx context.Context, message string, opt ...Option) error {
	const op = "dialog.Coordinator.Alert"
	opts := getModalOpts(opt...)
	modal := &Modal{
		Title:       opts.withTitle,
		Message:     message,
		ConfirmText: opts.withConfirmText,
		ShowConfirm: true,
		ShowClose:   opts.withClose,
		ConfirmType: opts.withConfirmType,
		decision:    make(chan bool, 1),
	}
	if opts.withTitle == "" {
		modal.Title = "Notice"
	}
	_, err := c.await(ctx, op, modal)
	return err
}

func (c *Coordinator) await(ctx context.Context, op string, modal *Modal) (bool, error) {
	c.mu.Lock()
	if c.modal != nil {
		c.mu.Unlock()
		return false, fmt.Errorf("%s: %w", op, ErrModalActive)
	}
	c.modal = modal
	c.mu.Unlock()

	select {
	case ok := <-modal.decision:
		return ok, nil
	case <-ctx.Done():
		c.mu.Lock()
		if c.modal == modal {
			c.modal = nil
		}
		c.mu.Unlock()
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// ActiveModal returns the modal awaiting a decision, or nil.
func (c *Coordinator) ActiveModal() *Modal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modal
}

// Resolve settles the active modal affirmatively.  Without an active modal
// it is a no-op.
func (c *Coordinator) Resolve() {
	c.settle(true)
}

// Dismiss settles the active modal negatively.  An alert (no cancel button)
// is settled affirmatively; closing it is its only acknowledgement.
func (c *Coordinator) Dismiss() {
	c.mu.Lock()
	modal := c.modal
	c.mu.Unlock()
	if modal != nil && !modal.ShowCancel {
		c.settle(true)
		return
	}
	c.settle(false)
}

func (c *Coordinator) settle(ok bool) {
	c.mu.Lock()
	modal := c.modal
	c.modal = nil
	c.mu.Unlock()
	if modal == nil {
		return
	}
	modal.decision <- ok
}

// ShowToast replaces the active toast.  A positive duration dismisses it
// automatically; zero applies DefaultToastDuration; a negative duration
// pins the toast until CloseToast.
func (c *Coordinator) ShowToast(message string, typ ToastType, duration time.Duration) {
	if typ == "" {
		typ = ToastInfo
	}
	if duration == 0 {
		duration = DefaultToastDuration
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.toastTimer != nil {
		c.toastTimer.Stop()
		c.toastTimer = nil
	}
	c.toast = &Toast{Message: message, Type: typ}
	c.toastSeq++
	if duration > 0 {
		seq := c.toastSeq
		c.toastTimer = time.AfterFunc(duration, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			// a newer toast may have replaced this one already
			if c.toastSeq == seq {
				c.toast = nil
				c.toastTimer = nil
			}
		})
	}
}

// ActiveToast returns the toast currently up, or nil.
func (c *Coordinator) ActiveToast() *Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toast
}

// CloseToast dismisses the active toast immediately.
func (c *Coordinator) CloseToast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.toastTimer != nil {
		c.toastTimer.Stop()
		c.toastTimer = nil
	}
	c.toast = nil
}
