package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halcyon-cms/pkg/config"
	"halcyon-cms/pkg/halcyon"
	"halcyon-cms/pkg/models"
)

type testApp struct {
	*App
	theme1 string
}

func bootTest(t *testing.T, blueprint string, opts ...func(*config.Config)) testApp {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		DefaultTheme: "theme1",
		Themes: []config.Theme{
			{Name: "theme1", Driver: config.DriverFile, Path: filepath.Join(dir, "theme1")},
			{Name: "theme2", Driver: config.DriverSQLite, Path: filepath.Join(dir, "theme2.db")},
		},
		Cache: config.CacheConfig{Size: 64, TTL: time.Minute},
	}
	if blueprint != "" {
		cfg.Blueprint = filepath.Join(dir, "blueprint.yaml")
		require.NoError(t, os.WriteFile(cfg.Blueprint, []byte(blueprint), 0o644))
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	app, err := Boot(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Close()) })
	return testApp{App: app, theme1: filepath.Join(dir, "theme1")}
}

func pageInput(fileName, title string) models.TemplateInput {
	return models.TemplateInput{
		FileName: fileName,
		Settings: map[string]halcyon.Value{
			"title": halcyon.String(title),
			"url":   halcyon.String("/" + strings.TrimSuffix(fileName, ".htm")),
		},
		Markup: "<h1>" + title + "</h1>",
	}
}

func TestBoot(t *testing.T) {
	app := bootTest(t, "")

	var names []string
	for _, def := range app.Templates.Types() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"page", "layout", "partial", "menu", "content"}, names)
	assert.Equal(t, []Theme{{Name: "theme1", Default: true}, {Name: "theme2"}}, app.Templates.Themes())
	assert.NotNil(t, app.Store.Cache())
}

func TestBootErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Boot(context.Background(), config.Config{
		Blueprint: filepath.Join(dir, "missing.yaml"),
		Themes:    []config.Theme{{Name: "a", Driver: config.DriverFile, Path: dir}},
	})
	assert.Error(t, err)

	_, err = Boot(context.Background(), config.Config{
		Themes: []config.Theme{{Name: "a", Driver: "s3", Path: dir}},
	})
	assert.Error(t, err)
}

func TestTemplatesLifecycle(t *testing.T) {
	ctx := context.Background()
	app := bootTest(t, "")
	svc := app.Templates

	created, err := svc.Create(ctx, "page", "", pageInput("home", "Home"))
	require.NoError(t, err)
	assert.Equal(t, "home.htm", created.FileName)
	assert.Equal(t, "theme1", created.Theme)

	raw, err := os.ReadFile(filepath.Join(app.theme1, "pages", "home.htm"))
	require.NoError(t, err)
	assert.Equal(t, "title = \"Home\"\nurl = \"/home\"\n==\n<h1>Home</h1>", string(raw))

	_, err = svc.Create(ctx, "page", "", pageInput("about", "About"))
	require.NoError(t, err)

	list, err := svc.List(ctx, "page", "theme1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "about.htm", list[0].FileName)
	assert.Equal(t, "Home", list[1].Title)

	got, err := svc.Get(ctx, "page", "", "home")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Home</h1>", got.Markup)

	t.Run("save removes missing settings and renames", func(t *testing.T) {
		in := pageInput("welcome.htm", "Welcome")
		in.Code = "function onStart() {}"
		in.Settings["url"] = halcyon.String("/")
		saved, err := svc.Save(ctx, "page", "", "home.htm", in)
		require.NoError(t, err)
		assert.Equal(t, "welcome.htm", saved.FileName)

		_, err = svc.Get(ctx, "page", "", "home.htm")
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := svc.Get(ctx, "page", "", "welcome")
		require.NoError(t, err)
		assert.Equal(t, "function onStart() {}", got.Code)
		assert.Equal(t, map[string]halcyon.Value{
			"title": halcyon.String("Welcome"),
			"url":   halcyon.String("/"),
		}, got.Settings)
	})

	t.Run("save keeps the name when none is given", func(t *testing.T) {
		in := pageInput("", "About us")
		in.Settings["url"] = halcyon.String("/about")
		saved, err := svc.Save(ctx, "page", "", "about", in)
		require.NoError(t, err)
		assert.Equal(t, "about.htm", saved.FileName)
		assert.Equal(t, halcyon.String("About us"), saved.Settings["title"])
	})

	t.Run("rename onto an existing template", func(t *testing.T) {
		_, err := svc.Save(ctx, "page", "", "about", pageInput("welcome", "Clash"))
		assert.ErrorIs(t, err, halcyon.ErrFileExists)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, "page", "", "about"))
		assert.NoFileExists(t, filepath.Join(app.theme1, "pages", "about.htm"))
		assert.ErrorIs(t, svc.Delete(ctx, "page", "", "about"), ErrNotFound)
	})
}

func TestTemplatesErrors(t *testing.T) {
	ctx := context.Background()
	svc := bootTest(t, "").Templates

	_, err := svc.Create(ctx, "page", "", models.TemplateInput{FileName: "untitled"})
	var verr *halcyon.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"The title field is required."}, verr.Messages()["title"])

	_, err = svc.Create(ctx, "page", "", pageInput("one/two/three", "Deep"))
	assert.ErrorIs(t, err, halcyon.ErrInvalidKey)

	_, err = svc.List(ctx, "widget", "")
	assert.ErrorIs(t, err, halcyon.ErrUnknownType)

	_, err = svc.List(ctx, "page", "theme9")
	assert.ErrorIs(t, err, halcyon.ErrUnknownDatasource)

	_, err = svc.Get(ctx, "page", "", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTemplatesContentOnlyOnDatabaseTheme(t *testing.T) {
	ctx := context.Background()
	svc := bootTest(t, "").Templates

	in := models.TemplateInput{
		FileName: "main",
		Settings: map[string]halcyon.Value{"ignored": halcyon.Bool(true)},
		Code:     "ignored",
		Markup:   "items:\n  - home\n",
	}
	created, err := svc.Create(ctx, "menu", "theme2", in)
	require.NoError(t, err)
	assert.Equal(t, "theme2", created.Theme)
	assert.Empty(t, created.Settings)
	assert.Empty(t, created.Code)
	assert.Equal(t, "items:\n  - home\n", created.Content)

	got, err := svc.Get(ctx, "menu", "theme2", "main.htm")
	require.NoError(t, err)
	assert.Equal(t, "items:\n  - home\n", got.Markup)

	_, err = svc.Get(ctx, "menu", "theme1", "main.htm")
	assert.ErrorIs(t, err, ErrNotFound)

	in.FileName = "main.txt"
	_, err = svc.Save(ctx, "menu", "theme2", "main", in)
	assert.ErrorIs(t, err, halcyon.ErrInvalidKey, "menus only allow htm")
}

const defaultsBlueprint = `
types:
  - name: post
    directory: posts
    compound: true
    fields:
      - name: title
        rules: required
      - name: draft
        default: true
      - name: viewBag.layout
        default: default
`

func TestTemplatesCreateAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	svc := bootTest(t, defaultsBlueprint).Templates

	created, err := svc.Create(ctx, "post", "", models.TemplateInput{
		FileName: "first",
		Settings: map[string]halcyon.Value{
			"title": halcyon.String("First"),
			"draft": halcyon.Bool(false),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]halcyon.Value{
		"title":   halcyon.String("First"),
		"draft":   halcyon.Bool(false),
		"viewBag": halcyon.Map(map[string]halcyon.Value{"layout": halcyon.String("default")}),
	}, created.Settings)
}

func TestSetDefault(t *testing.T) {
	attrs := map[string]halcyon.Value{
		"title":   halcyon.String("x"),
		"viewBag": halcyon.Map(map[string]halcyon.Value{"a": halcyon.Int(1)}),
	}
	setDefault(attrs, []string{"title"}, halcyon.String("default"))
	setDefault(attrs, []string{"viewBag", "b"}, halcyon.Int(2))
	setDefault(attrs, []string{"title", "nested"}, halcyon.Int(3))

	assert.Equal(t, halcyon.String("x"), attrs["title"])
	assert.Equal(t, halcyon.Map(map[string]halcyon.Value{
		"a": halcyon.Int(1),
		"b": halcyon.Int(2),
	}), attrs["viewBag"])
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	app := bootTest(t, "")

	problems, err := app.Templates.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)

	pages := filepath.Join(app.theme1, "pages")
	require.NoError(t, os.MkdirAll(pages, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pages, "broken.htm"), []byte("title = \n==\n<p>broken</p>"), 0o644))

	problems, err = app.Templates.Check(ctx)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "theme1", problems[0].Theme)
	assert.Equal(t, "page", problems[0].Type)
	assert.ErrorIs(t, problems[0].Err, halcyon.ErrMalformedDocument)
}

func TestCheckIgnoresSkipMalformed(t *testing.T) {
	ctx := context.Background()
	app := bootTest(t, "", func(cfg *config.Config) { cfg.SkipMalformed = true })

	_, err := app.Templates.Create(ctx, "page", "", pageInput("home", "Home"))
	require.NoError(t, err)
	pages := filepath.Join(app.theme1, "pages")
	require.NoError(t, os.WriteFile(filepath.Join(pages, "broken.htm"), []byte("title = \n==\n<p>broken</p>"), 0o644))

	list, err := app.Templates.List(ctx, "page", "theme1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	problems, err := app.Templates.Check(ctx)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "theme1", problems[0].Theme)
	assert.Equal(t, "page", problems[0].Type)
	assert.ErrorIs(t, problems[0].Err, halcyon.ErrMalformedDocument)
}

func TestWatchAndClose(t *testing.T) {
	app := bootTest(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, app.Watch(ctx))
	assert.DirExists(t, filepath.Join(app.theme1, "pages"))
	require.NoError(t, app.Close())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"key":"value"`)

	buf.Reset()
	NewLogger("nonsense", "text", &buf).Debug("debug")
	assert.Empty(t, buf.String())
}
