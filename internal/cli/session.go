package cli

import (
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/engine"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/logging"
)

// session is an engine opened from the loaded configuration.
type session struct {
	engine *engine.Engine
	logger *zap.Logger
}

func openSession(opts *RootOptions) (*session, error) {
	cfg := opts.Config
	logger, err := cfg.Logger()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure logging", err)
	}
	locale, err := cfg.SortLocale()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure sort locale", err)
	}
	s, err := cfg.OpenStore(logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithSortLocale(locale),
	}
	if cfg.RootDir != "" {
		engineOpts = append(engineOpts,
			engine.WithRootDir(cfg.RootDir),
			engine.WithTransactionsFile(cfg.Transactions.File))
	}
	eng, err := engine.New(s, engineOpts...)
	if err != nil {
		_ = s.Close()
		return nil, WrapExitError(ExitCommandError, "start engine", err)
	}
	logging.Component(logger, "cli").Debug("session opened",
		zap.String("backend", cfg.Store.Backend),
		zap.String(logging.FieldPath, cfg.RootDir))
	return &session{engine: eng, logger: logger}, nil
}

// Close saves transactions, closes the store and flushes the logger.
func (s *session) Close() error {
	err := s.engine.Close()
	_ = s.logger.Sync()
	return err
}

// resolveConcept accepts a nid or a UUID and returns the nid of an entity
// the store knows. Resolution never assigns a nid.
func (s *session) resolveConcept(arg string) (int32, error) {
	var nid int32
	if n, err := strconv.ParseInt(arg, 10, 32); err == nil {
		nid = int32(n)
	} else {
		id, err := uuid.Parse(arg)
		if err != nil {
			return 0, errors.Newf("%q is neither a nid nor a UUID", arg)
		}
		var known bool
		if nid, known, err = s.engine.Store().LookupNid(id); err != nil {
			return 0, err
		}
		if !known {
			return 0, errors.Wrapf(errors.ErrNotFound, "no entity for %s", arg)
		}
	}
	if _, ok, err := s.engine.Store().Chronology(nid); err != nil || !ok {
		if err != nil {
			return 0, err
		}
		return 0, errors.Wrapf(errors.ErrNotFound, "no entity for %s", arg)
	}
	return nid, nil
}

// view returns the named view preset with its navigation swapped for the
// named navigation preset when one is given.
func (s *session) view(name, navigation string, sorted bool) (coordinate.ViewCoordinate, error) {
	presets := s.engine.Presets()
	view, ok := presets.Views[name]
	if !ok {
		return coordinate.ViewCoordinate{}, errors.Newf("unknown view preset %q", name)
	}
	if navigation != "" {
		nav, ok := presets.Navigations[navigation]
		if !ok {
			return coordinate.ViewCoordinate{}, errors.Newf("unknown navigation preset %q", navigation)
		}
		view = view.WithNavigation(nav)
	}
	view = view.WithNavigation(view.Navigation.WithSort(sorted))
	return view, view.Validate()
}
