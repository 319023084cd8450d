// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jeranaias/delve/internal/controller"
	"github.com/jeranaias/delve/internal/payload"
	"github.com/jeranaias/delve/internal/stream"
	"github.com/jeranaias/delve/internal/ui/render"
)

// ExchangeError is a reply that ended in a failure message.
type ExchangeError struct {
	Message string
}

func (e *ExchangeError) Error() string {
	return e.Message
}

// exchange runs send and waits until the request it started has settled.
// Typing animations are skipped. Cancelling ctx cancels the request; the
// canceled turn is still returned.
func exchange(ctx context.Context, ctrl *controller.Controller, send func() error, onStage func(stream.StageEntry)) (controller.ViewModel, error) {
	sub, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	if err := send(); err != nil {
		return controller.ViewModel{}, err
	}
	start := ctrl.View().Version

	seen := 0
	done := ctx.Done()
	for {
		select {
		case <-done:
			done = nil
			if err := ctrl.CancelInFlight(); err != nil {
				return controller.ViewModel{}, ctx.Err()
			}

		case vm, ok := <-sub:
			if !ok {
				if ctx.Err() != nil {
					return controller.ViewModel{}, ctx.Err()
				}
				return controller.ViewModel{}, controller.ErrStopped
			}
			if vm.Version < start {
				continue
			}
			if onStage != nil {
				for ; seen < len(vm.StageLog); seen++ {
					onStage(vm.StageLog[seen])
				}
			}
			if vm.AnimatingIndex >= 0 {
				if err := ctrl.SkipAnimation(); err != nil {
					return vm, err
				}
				continue
			}
			if !vm.InFlight {
				return vm, nil
			}
		}
	}
}

// printReply writes the last turn of vm to w, followed by the canvas when
// withCanvas is set and the session has one. A failed turn is returned as
// an ExchangeError after printing.
func printReply(w io.Writer, r *render.Renderer, vm controller.ViewModel, width int, withCanvas bool) error {
	if len(vm.Turns) == 0 {
		return nil
	}
	t := vm.Turns[len(vm.Turns)-1]
	if t.Failed {
		fmt.Fprintln(w, errorStyle.Render("Error:")+" "+t.Assistant)
		return &ExchangeError{Message: t.Assistant}
	}

	p := t.Payload
	if p == nil {
		p = payload.PlainText{Text: t.Assistant}
	}
	fmt.Fprintln(w, r.Payload(p, width))

	if withCanvas && vm.Canvas != nil && vm.Canvas.Content != nil {
		cv := vm.Canvas.Content
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Full report"))
		fmt.Fprintln(w, r.Payload(payload.Classify(cv.FullAnswer), width))
		if m := formatMetrics(cv.Metrics); m != "" {
			fmt.Fprintln(w, infoStyle.Render(m))
		}
	}
	return nil
}

func formatMetrics(metrics map[string]float64) string {
	if len(metrics) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strconv.FormatFloat(metrics[k], 'f', -1, 64))
	}
	return strings.Join(parts, "  ")
}

// stagePrinter prints research stages as they arrive.
func stagePrinter(w io.Writer) func(stream.StageEntry) {
	return func(e stream.StageEntry) {
		fmt.Fprintln(w, stageStyle.Render("... "+e.Label))
	}
}

// markdownStyle picks the glamour style for w: the configured one on a
// terminal, plain text otherwise.
func markdownStyle(w io.Writer, configured string) string {
	if isTerminalWriter(w) {
		return configured
	}
	return render.StylePlain
}

// openSession makes id the active session and waits for it to load.
func openSession(ctx context.Context, ctrl *controller.Controller, id string) error {
	sub, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	if err := ctrl.SwitchSession(id); err != nil {
		return err
	}
	start := ctrl.View().Version

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case vm, ok := <-sub:
			if !ok {
				return controller.ErrStopped
			}
			if vm.Version < start || vm.LoadingSession != "" {
				continue
			}
			if vm.SessionID == id {
				return nil
			}
			reason := "not found"
			if n := len(vm.Notices); n > 0 {
				reason = vm.Notices[n-1].Text
			}
			return fmt.Errorf("could not open session %s: %s", id, reason)
		}
	}
}
