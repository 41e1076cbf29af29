// Package smb drives an SMB/CIFS network share through the host's share
// client (net use / dir / mkdir ...). Every operation runs inside a session
// that is opened for the call and always released afterwards.
package smb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/logging"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metrics"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/remote"
)

var (
	// ErrAuthentication means the share rejected the session.
	ErrAuthentication = errors.New("share authentication failed")

	// ErrInvalidPath means a path or query cannot be passed to the share safely.
	ErrInvalidPath = errors.New("invalid path")

	// ErrInvalidCredentials means host, share or username are malformed.
	ErrInvalidCredentials = errors.New("invalid share credentials")
)

var (
	hostPattern  = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
	sharePattern = regexp.MustCompile(`^[a-zA-Z0-9_$-]+$`)
)

// Credentials identify and unlock one share. They are read per request and
// never persisted by this package.
type Credentials struct {
	Host     string `json:"host"`
	Share    string `json:"share"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// Validate checks the fields that end up in command arguments.
func (c Credentials) Validate() error {
	switch {
	case !hostPattern.MatchString(c.Host):
		return fmt.Errorf("%w: invalid host format", ErrInvalidCredentials)
	case !sharePattern.MatchString(c.Share):
		return fmt.Errorf("%w: invalid share name format", ErrInvalidCredentials)
	case c.Username == "" || strings.ContainsAny(c.Username, "\"\r\n"):
		return fmt.Errorf("%w: invalid username", ErrInvalidCredentials)
	case c.Password == "":
		return fmt.Errorf("%w: password required", ErrInvalidCredentials)
	}
	return nil
}

// UNC returns \\host\share.
func (c Credentials) UNC() string {
	return `\\` + c.Host + `\` + c.Share
}

func (c Credentials) key() string {
	return strings.ToLower(c.UNC())
}

// CommandError reports a share command that ran and failed.
type CommandError struct {
	Op       string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.ExitCode)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, msg)
}

// Client opens share sessions through an Executor. Sessions are not pooled:
// each call gets its own connect/disconnect pair.
type Client struct {
	exec remote.Executor

	// open counts sessions this process has open per share and stale marks
	// shares whose last release failed. Together they decide whether a
	// mapping must be torn down before connecting; they do not serialise
	// callers.
	mu    sync.Mutex
	open  map[string]int
	stale map[string]bool
}

// NewClient returns a Client that runs share commands with exec.
func NewClient(exec remote.Executor) *Client {
	return &Client{exec: exec, open: make(map[string]int), stale: make(map[string]bool)}
}

// Session is one authenticated mapping of a share.
type Session struct {
	client *Client
	creds  Credentials
	closed bool
}

// Connect authenticates against the share. If this process already holds a
// mapping for the same share, or failed to release one, it is deleted
// first, ignoring errors, so the share client does not refuse a second
// connection.
func (c *Client) Connect(ctx context.Context, creds Credentials) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	key := creds.key()
	c.mu.Lock()
	stale := c.open[key] > 0 || c.stale[key]
	c.mu.Unlock()
	if stale && c.disconnect(ctx, creds) {
		c.mu.Lock()
		delete(c.stale, key)
		c.mu.Unlock()
	}

	return c.connect(ctx, creds)
}

func (c *Client) connect(ctx context.Context, creds Credentials) (*Session, error) {
	s := &Session{client: c, creds: creds}
	if err := s.run(ctx, "connect", netUse(creds)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAuthentication, creds.UNC(), err)
	}

	c.mu.Lock()
	c.open[creds.key()]++
	c.mu.Unlock()
	metrics.ShareSessionOpened()
	return s, nil
}

// disconnect deletes the mapping and reports whether that worked. Failures
// are only logged.
func (c *Client) disconnect(ctx context.Context, creds Credentials) bool {
	s := &Session{client: c, creds: creds}
	if err := s.run(ctx, "disconnect", netUseDelete(creds)); err != nil {
		logging.WithContext(ctx).Debug("pre-emptive disconnect failed",
			zap.String("share", creds.UNC()), zap.Error(err))
		return false
	}
	return true
}

// Close releases the session. It is safe to call more than once. When the
// release fails the share stays marked stale and the next Connect tears the
// mapping down first.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.run(ctx, "disconnect", netUseDelete(s.creds))

	c, key := s.client, s.creds.key()
	c.mu.Lock()
	if c.open[key]--; c.open[key] <= 0 {
		delete(c.open, key)
	}
	if err != nil {
		c.stale[key] = true
	} else {
		delete(c.stale, key)
	}
	c.mu.Unlock()
	metrics.ShareSessionClosed()
	return err
}

// WithSession connects, runs fn and always disconnects, even when fn fails.
// A disconnect failure is logged and never replaces fn's result.
func (c *Client) WithSession(ctx context.Context, creds Credentials, fn func(*Session) error) error {
	s, err := c.Connect(ctx, creds)
	if err != nil {
		return err
	}
	defer func() {
		// Release even when the caller's context is already cancelled.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if cerr := s.Close(closeCtx); cerr != nil {
			logging.WithContext(ctx).Warn("failed to disconnect share",
				zap.String("share", creds.UNC()), zap.Error(cerr))
		}
	}()
	return fn(s)
}

// Probe verifies credentials the way a new connection is registered: any
// existing mapping is deleted unconditionally, then the share root is
// listed inside a fresh session.
func (c *Client) Probe(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	if c.disconnect(ctx, creds) {
		c.mu.Lock()
		delete(c.stale, creds.key())
		c.mu.Unlock()
	}
	return c.WithSession(ctx, creds, func(s *Session) error {
		_, err := s.List(ctx, "")
		return err
	})
}

// run executes cmd, recording metrics, and converts non-zero exits into
// CommandError.
func (s *Session) run(ctx context.Context, op string, cmd remote.Command) error {
	_, err := s.output(ctx, op, cmd)
	return err
}

func (s *Session) output(ctx context.Context, op string, cmd remote.Command) (remote.Result, error) {
	start := time.Now()
	res, err := s.client.exec.Run(ctx, cmd)
	ok := err == nil && res.ExitCode == 0
	metrics.RecordRemoteCommand(cmd.Name(), time.Since(start), ok)

	logging.WithContext(ctx).Debug("share command",
		zap.String("op", op),
		zap.String("command", cmd.String()),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", time.Since(start)))

	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	if res.ExitCode != 0 {
		return res, &CommandError{Op: op, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}
