// Package assistant implements the chat contract: a free-text message is
// classified, dispatched against the caller's share and recorded in the
// history sink.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/credentials"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/dispatch"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/intent"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/listing"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/logging"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metadata"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metrics"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/storage/smb"
)

// CredentialLookup resolves a connection id to share credentials.
type CredentialLookup interface {
	Lookup(ctx context.Context, connectionID string) (smb.Credentials, error)
}

// HistorySink records chat turns.
type HistorySink interface {
	AppendHistory(ctx context.Context, h *metadata.HistoryRow) error
}

// Dispatcher executes actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, a intent.Action, creds smb.Credentials, confirmed bool) (*dispatch.Result, error)
}

// Request is one chat turn.
type Request struct {
	Message       string `json:"message"`
	ConfirmDelete bool   `json:"confirmDelete,omitempty"`
}

// Response is the reply to a chat turn.
type Response struct {
	Response string              `json:"response"`
	Action   intent.Envelope     `json:"action"`
	Files    []listing.FileEntry `json:"files,omitempty"`
}

// Service answers chat requests.
type Service struct {
	classifier     *intent.Classifier
	dispatcher     Dispatcher
	creds          CredentialLookup
	history        HistorySink
	historyTimeout time.Duration

	wg sync.WaitGroup
}

// New creates a Service. history may be nil.
func New(classifier *intent.Classifier, d Dispatcher, creds CredentialLookup, history HistorySink, historyTimeout time.Duration) *Service {
	if classifier == nil {
		classifier = intent.NewClassifier()
	}
	if historyTimeout <= 0 {
		historyTimeout = 5 * time.Second
	}
	return &Service{
		classifier:     classifier,
		dispatcher:     d,
		creds:          creds,
		history:        history,
		historyTimeout: historyTimeout,
	}
}

// Chat classifies req.Message and dispatches it for connectionID. Log lines
// carry the connection id through ctx (see logging.WithConnection).
// Credentials are looked up only when the action reaches the share. The
// turn is written to the history sink in the background; a sink failure
// never fails the request.
func (s *Service) Chat(ctx context.Context, connectionID string, req Request) (*Response, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, dispatch.Validation("message required")
	}

	action := s.classifier.Classify(text)
	metrics.RecordActionClassified(string(action.Kind()))
	logging.WithContext(ctx).Debug("classified message",
		zap.String("action", string(action.Kind())))

	res, err := s.run(ctx, connectionID, action, req.ConfirmDelete)

	var summary string
	if err != nil {
		summary = err.Error()
	} else {
		summary = res.Message
	}
	s.record(ctx, &metadata.HistoryRow{
		ConnectionID: connectionID,
		Query:        text,
		Action:       string(action.Kind()),
		Response:     summary,
		Success:      err == nil,
	})

	if err != nil {
		return nil, err
	}
	return &Response{Response: res.Message, Action: intent.Envelope{Action: action}, Files: res.Files}, nil
}

func (s *Service) run(ctx context.Context, connectionID string, action intent.Action, confirmed bool) (*dispatch.Result, error) {
	var creds smb.Credentials
	if dispatch.NeedsShare(action, confirmed) {
		var err error
		creds, err = s.creds.Lookup(ctx, connectionID)
		if errors.Is(err, credentials.ErrNotFound) {
			return nil, &dispatch.Error{Kind: dispatch.KindAuthentication, Reason: "Unknown connection", Err: err}
		}
		if err != nil {
			return nil, &dispatch.Error{Kind: dispatch.KindAuthentication, Reason: "Could not load share credentials", Err: err}
		}
	}
	return s.dispatcher.Dispatch(ctx, action, creds, confirmed)
}

// record writes h without blocking the caller. It outlives the request
// context but is bounded by the history timeout.
func (s *Service) record(ctx context.Context, h *metadata.HistoryRow) {
	if s.history == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.RecordHistoryWrite(false)
				logging.Error("history sink panicked", zap.Any("panic", r))
			}
		}()

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.historyTimeout)
		defer cancel()
		err := s.history.AppendHistory(wctx, h)
		metrics.RecordHistoryWrite(err == nil)
		if err != nil {
			logging.WithContext(ctx).Warn("failed to record chat history", zap.Error(err))
		}
	}()
}

// Close waits for pending history writes.
func (s *Service) Close() {
	s.wg.Wait()
}
