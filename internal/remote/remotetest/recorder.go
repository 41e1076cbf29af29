// Package remotetest provides a scripted remote.Executor for tests.
package remotetest

import (
	"context"
	"strings"
	"sync"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/remote"
)

// Rule answers commands whose rendered form contains Match.
type Rule struct {
	Match  string
	Result remote.Result
	Err    error
}

// Recorder records every command it is asked to run and answers from its
// rules. The first matching rule wins; unmatched commands succeed with
// empty output.
type Recorder struct {
	mu    sync.Mutex
	rules []Rule
	calls []remote.Command
}

// New returns a Recorder with the given rules.
func New(rules ...Rule) *Recorder {
	return &Recorder{rules: rules}
}

// On appends a rule.
func (r *Recorder) On(match string, res remote.Result, err error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, Rule{Match: match, Result: res, Err: err})
	return r
}

// Run implements remote.Executor.
func (r *Recorder) Run(ctx context.Context, cmd remote.Command) (remote.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	rendered := render(cmd)
	for _, rule := range r.rules {
		if strings.Contains(rendered, rule.Match) {
			return rule.Result, rule.Err
		}
	}
	return remote.Result{}, nil
}

// Calls returns the rendered commands in the order they ran. Secrets are
// rendered in clear so tests can assert on them.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = render(c)
	}
	return out
}

// Names returns the metric names of the commands in the order they ran.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Name()
	}
	return out
}

// Commands returns the raw commands in the order they ran.
func (r *Recorder) Commands() []remote.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]remote.Command(nil), r.calls...)
}

func render(c remote.Command) string {
	return strings.Join(append([]string{c.Program}, c.Args...), " ")
}
