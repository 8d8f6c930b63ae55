package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"halcyon-cms/pkg/config"
	"halcyon-cms/pkg/ctxlog"
	"halcyon-cms/pkg/halcyon"
	"halcyon-cms/pkg/models"
)

// App is a booted template store with everything hanging off it.
type App struct {
	Config    config.Config
	Store     *halcyon.Store
	Blueprint models.Blueprint
	Templates *Templates

	fileRoots map[string]string
	closers   []io.Closer
	watchers  []*halcyon.Watcher
}

// Boot opens one datasource per configured theme, registers the blueprint
// types and returns the ready store. Close releases the datasources.
func Boot(ctx context.Context, cfg config.Config) (*App, error) {
	logger := ctxlog.FromContext(ctx)

	bp := models.DefaultBlueprint()
	if cfg.Blueprint != "" {
		var err error
		if bp, err = models.LoadBlueprint(cfg.Blueprint); err != nil {
			return nil, fmt.Errorf("load blueprint: %w", err)
		}
	}

	app := &App{Config: cfg, Blueprint: bp, fileRoots: map[string]string{}}
	resolver := halcyon.NewResolver(nil)
	for _, theme := range cfg.Themes {
		ds, err := app.openTheme(ctx, theme)
		if err != nil {
			app.Close()
			return nil, err
		}
		resolver.AddDatasource(theme.Name, ds)
		logger.Debug("datasource registered", "theme", theme.Name, "driver", theme.Driver, "path", theme.Path)
	}
	resolver.SetDefaultDatasource(cfg.DefaultTheme)

	var opts []halcyon.StoreOption
	if cache := halcyon.NewCache(cfg.Cache.Size, cfg.Cache.TTL); cache != nil {
		opts = append(opts, halcyon.WithCache(cache))
	}
	app.Store = halcyon.NewStore(resolver, opts...)

	for _, def := range bp.Types {
		if _, err := app.Store.Register(def.Type()); err != nil {
			app.Close()
			return nil, fmt.Errorf("register type %s: %w", def.Name, err)
		}
	}
	app.Templates = NewTemplates(app.Store, bp)

	logger.Info("store ready", "themes", resolver.Names(), "default", cfg.DefaultTheme, "types", len(bp.Types))
	return app, nil
}

func (a *App) openTheme(ctx context.Context, theme config.Theme) (halcyon.Datasource, error) {
	switch theme.Driver {
	case config.DriverSQLite:
		ds, err := halcyon.OpenDbDatasource(ctx, theme.Path, theme.Name)
		if err != nil {
			return nil, fmt.Errorf("theme %s: %w", theme.Name, err)
		}
		ds.SkipMalformed(a.Config.SkipMalformed)
		a.closers = append(a.closers, ds)
		return ds, nil
	case config.DriverFile, "":
		var opts []halcyon.FileOption
		if a.Config.SkipMalformed {
			opts = append(opts, halcyon.WithSkipMalformed())
		}
		root, err := filepath.Abs(theme.Path)
		if err != nil {
			return nil, fmt.Errorf("theme %s: %w", theme.Name, err)
		}
		a.fileRoots[theme.Name] = root
		return halcyon.NewFileDatasource(root, opts...), nil
	default:
		return nil, fmt.Errorf("theme %s: unknown driver %q", theme.Name, theme.Driver)
	}
}

// Watch starts a change watcher for every file theme so that edits made
// outside the process invalidate the cache. It is a no-op without a cache.
func (a *App) Watch(ctx context.Context) error {
	cache := a.Store.Cache()
	if cache == nil {
		return nil
	}
	var dirs []halcyon.Directory
	for _, t := range a.Store.Types() {
		dirs = append(dirs, t.Dir())
	}

	logger := ctxlog.FromContext(ctx)
	for name, root := range a.fileRoots {
		w, err := halcyon.NewWatcher(cache, name, root, dirs)
		if err != nil {
			return fmt.Errorf("watch theme %s: %w", name, err)
		}
		theme := name
		w.OnChange = func(c halcyon.Change) {
			logger.Debug("template changed on disk", "theme", theme, "dir", c.Dir, "file", c.FileName, "op", c.Op.String())
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("watch theme %s: %w", name, err)
		}
		a.watchers = append(a.watchers, w)
		logger.Info("watching theme", "theme", name, "root", root)
	}
	return nil
}

// Close stops the watchers and closes database-backed themes.
func (a *App) Close() error {
	for _, w := range a.watchers {
		w.Stop()
	}
	a.watchers = nil

	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
