package cli

import (
	"context"
	"fmt"

	"github.com/roach88/litequery/internal/adapter"
	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/schema"
	"github.com/roach88/litequery/internal/store"
)

// loadModels loads the configured model path.
func loadModels(opts *RootOptions) (*model.Registry, error) {
	reg, err := schema.Load(opts.Config.Models, schema.WithCaseInsensitive(opts.Config.CaseInsensitive))
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("models loaded", "path", opts.Config.Models, "count", reg.Len())
	return reg, nil
}

// session is an open database with one leased connection and an adapter
// over the loaded models.
type session struct {
	store   *store.Store
	conn    *store.Conn
	adapter *adapter.Adapter
}

// openSession loads the models, opens the configured database and leases
// its connection. The database file is created if it does not exist.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	reg, err := loadModels(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load models", err)
	}

	opts.Logger.Debug("opening database", "path", opts.Config.Database)
	st, err := store.Open(opts.Config.Database,
		store.WithLogger(opts.Logger),
		store.WithBusyTimeout(opts.Config.BusyTimeout),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	conn, err := st.Lease(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to lease connection", err)
	}

	return &session{
		store:   st,
		conn:    conn,
		adapter: adapter.New(reg, adapter.WithLogger(opts.Logger)),
	}, nil
}

// model resolves name as an identity or table name.
func (s *session) model(name string) (*model.Model, error) {
	m, ok := s.adapter.Registry().Lookup(name)
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown model %q", name))
	}
	return m, nil
}

// models resolves names, or every registered model when names is empty.
func (s *session) models(names []string) ([]*model.Model, error) {
	if len(names) == 0 {
		return s.adapter.Registry().Models(), nil
	}
	out := make([]*model.Model, 0, len(names))
	for _, name := range names {
		m, err := s.model(name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *session) Close() error {
	if err := s.conn.Release(); err != nil {
		s.store.Close()
		return err
	}
	return s.store.Close()
}
