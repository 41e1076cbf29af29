// Package credentials registers share connections and resolves a
// connection id back to the credentials needed to open a session.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/logging"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metadata"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metrics"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/storage/smb"
)

// ErrNotFound is returned for an unknown connection id.
var ErrNotFound = errors.New("connection not found")

// Store persists connection rows.
type Store interface {
	CreateConnection(ctx context.Context, c *metadata.ConnectionRow) error
	GetConnection(ctx context.Context, id string) (*metadata.ConnectionRow, error)
	TouchConnection(ctx context.Context, id string) error
}

// Prober checks that credentials open a session.
type Prober interface {
	Probe(ctx context.Context, creds smb.Credentials) error
}

// Registry registers and resolves connections.
type Registry struct {
	store  Store
	sealer *Sealer
	prober Prober
}

// NewRegistry creates a Registry.
func NewRegistry(store Store, sealer *Sealer, prober Prober) *Registry {
	return &Registry{store: store, sealer: sealer, prober: prober}
}

// Register probes the share with creds and, if the share accepts them,
// stores them under a new connection id.
func (r *Registry) Register(ctx context.Context, creds smb.Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", err
	}
	if err := r.prober.Probe(ctx, creds); err != nil {
		metrics.RecordAuthAttempt(false)
		logging.WithContext(ctx).Warn("share probe failed",
			zap.String("share", creds.UNC()),
			zap.String("username", creds.Username),
			zap.Error(err))
		return "", err
	}

	id := uuid.NewString()
	sealed, err := r.sealer.Seal([]byte(creds.Password), []byte(id))
	if err != nil {
		return "", err
	}
	row := &metadata.ConnectionRow{
		ID:             id,
		Host:           creds.Host,
		Share:          creds.Share,
		Username:       creds.Username,
		SealedPassword: sealed,
	}
	if err := r.store.CreateConnection(ctx, row); err != nil {
		return "", fmt.Errorf("store connection: %w", err)
	}

	metrics.RecordAuthAttempt(true)
	logging.WithContext(ctx).Info("connection registered",
		logging.ConnectionID(id),
		zap.String("share", creds.UNC()),
		zap.String("username", creds.Username))
	return id, nil
}

// Lookup resolves a connection id. The last-used timestamp is updated on a
// best-effort basis.
func (r *Registry) Lookup(ctx context.Context, id string) (smb.Credentials, error) {
	row, err := r.store.GetConnection(ctx, id)
	if errors.Is(err, metadata.ErrNotFound) {
		return smb.Credentials{}, ErrNotFound
	}
	if err != nil {
		return smb.Credentials{}, err
	}

	password, err := r.sealer.Open(row.SealedPassword, []byte(row.ID))
	if err != nil {
		return smb.Credentials{}, fmt.Errorf("connection %s: %w", id, err)
	}

	if err := r.store.TouchConnection(ctx, id); err != nil {
		logging.WithContext(ctx).Debug("failed to touch connection", zap.Error(err))
	}

	return smb.Credentials{
		Host:     row.Host,
		Share:    row.Share,
		Username: row.Username,
		Password: string(password),
	}, nil
}
