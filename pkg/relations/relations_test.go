package relations

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halcyon-cms/pkg/halcyon"
)

type fixture struct {
	store    *halcyon.Store
	pages    *halcyon.Query
	metas    *halcyon.Query
	comments *halcyon.Query
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	resolver := halcyon.NewResolver(map[string]halcyon.Datasource{
		"theme1": halcyon.NewFileDatasourceFS(memfs.New()),
	})
	resolver.SetDefaultDatasource("theme1")
	store := halcyon.NewStore(resolver)

	for _, typ := range []halcyon.Type{
		{Name: "page", Directory: "pages", Compound: true},
		{Name: "meta", Directory: "meta", Compound: true},
		{Name: "comment", Directory: "comments", Compound: true},
	} {
		_, err := store.Register(typ)
		require.NoError(t, err)
	}

	f := &fixture{store: store}
	var err error
	f.pages, err = store.Query("page")
	require.NoError(t, err)
	f.metas, err = store.Query("meta")
	require.NoError(t, err)
	f.comments, err = store.Query("comment")
	require.NoError(t, err)
	return f
}

func create(t *testing.T, q *halcyon.Query, fileName string) *halcyon.Model {
	t.Helper()
	m, err := q.Create(context.Background(), map[string]halcyon.Value{
		"fileName": halcyon.String(fileName),
		"title":    halcyon.String(fileName),
	})
	require.NoError(t, err)
	return m
}

func find(t *testing.T, q *halcyon.Query, key string) *halcyon.Model {
	t.Helper()
	m, err := q.Find(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, m, key)
	return m
}

func TestHasOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	page := create(t, f.pages, "blog")
	create(t, f.metas, "blog-meta")
	create(t, f.metas, "other-meta")

	rel := &HasOne{Parent: page, Related: f.metas, ForeignKey: "page", Name: "meta"}

	require.NoError(t, rel.SetSimpleValue(ctx, "blog-meta"))
	key, ok := rel.SimpleValue()
	require.True(t, ok)
	assert.Equal(t, "blog-meta.htm", key)
	assert.Equal(t, 1, page.Pending())
	assert.True(t, find(t, f.metas, "blog-meta").Get("page").IsNull(), "nothing is written before the parent saves")

	require.NoError(t, page.Save(ctx))
	assert.Equal(t, halcyon.String("blog.htm"), find(t, f.metas, "blog-meta").Get("page"))

	got, err := rel.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "blog-meta.htm", got.FileName())

	t.Run("replacing detaches the previous model", func(t *testing.T) {
		require.NoError(t, rel.SetSimpleValue(ctx, "other-meta"))
		require.NoError(t, page.Save(ctx))

		assert.True(t, find(t, f.metas, "blog-meta").Get("page").IsNull())
		assert.Equal(t, halcyon.String("blog.htm"), find(t, f.metas, "other-meta").Get("page"))
	})

	t.Run("nil clears the relation", func(t *testing.T) {
		require.NoError(t, rel.SetSimpleValue(ctx, nil))
		_, ok := rel.SimpleValue()
		assert.False(t, ok)
		require.NoError(t, page.Save(ctx))

		got, err := rel.Get(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestHasOneUnsavedParent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	meta := create(t, f.metas, "meta")

	parent := f.pages.New(map[string]halcyon.Value{"fileName": halcyon.String("fresh")})
	rel := &HasOne{Parent: parent, Related: f.metas, ForeignKey: "page", Name: "meta"}
	require.NoError(t, rel.SetSimpleValue(ctx, meta))
	assert.True(t, meta.Get("page").IsNull(), "the key is unknown until the parent exists")

	require.NoError(t, parent.Save(ctx))
	assert.Equal(t, halcyon.String("fresh.htm"), find(t, f.metas, "meta").Get("page"))
}

func TestHasOneFailedSaveDiscardsStagedWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	create(t, f.pages, "taken")
	page := create(t, f.pages, "blog")
	create(t, f.metas, "meta")

	rel := &HasOne{Parent: page, Related: f.metas, ForeignKey: "page", Name: "meta"}
	require.NoError(t, rel.SetSimpleValue(ctx, "meta"))

	page.SetFileName("taken")
	require.Error(t, page.Save(ctx))
	assert.Equal(t, 0, page.Pending())
	assert.True(t, find(t, f.metas, "meta").Get("page").IsNull())
}

func TestMorphTo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	page := create(t, f.pages, "blog")

	comment := f.comments.New(map[string]halcyon.Value{"fileName": halcyon.String("c1")})
	rel := &MorphTo{
		Parent:     comment,
		ForeignKey: "commentable_id",
		MorphType:  "commentable_type",
		Name:       "commentable",
		Resolve:    f.store.Query,
	}

	require.NoError(t, rel.SetSimpleValue(page))
	id, typ := rel.SimpleValue()
	assert.Equal(t, "blog.htm", id)
	assert.Equal(t, "page", typ)

	require.NoError(t, comment.Save(ctx))
	saved := find(t, f.comments, "c1")
	assert.Equal(t, halcyon.String("blog.htm"), saved.Get("commentable_id"))
	assert.Equal(t, halcyon.String("page"), saved.Get("commentable_type"))

	t.Run("loads the target by type", func(t *testing.T) {
		loaded := &MorphTo{
			Parent: saved, ForeignKey: "commentable_id", MorphType: "commentable_type",
			Name: "commentable", Resolve: f.store.Query,
		}
		target, err := loaded.Get(ctx)
		require.NoError(t, err)
		require.NotNil(t, target)
		assert.Equal(t, "blog.htm", target.FileName())
		assert.Equal(t, "page", target.Type().Name)
	})

	t.Run("pair and key", func(t *testing.T) {
		require.NoError(t, rel.SetSimpleValue([2]string{"about.htm", "page"}))
		id, typ := rel.SimpleValue()
		assert.Equal(t, "about.htm", id)
		assert.Equal(t, "page", typ)
		_, cached := comment.Relation("commentable")
		assert.False(t, cached)

		require.NoError(t, rel.SetSimpleValue("contact.htm"))
		id, _ = rel.SimpleValue()
		assert.Equal(t, "contact.htm", id)
	})

	t.Run("nil dissociates", func(t *testing.T) {
		require.NoError(t, rel.SetSimpleValue(nil))
		id, typ := rel.SimpleValue()
		assert.Empty(t, id)
		assert.Empty(t, typ)

		target, err := rel.Get(ctx)
		require.NoError(t, err)
		assert.Nil(t, target)
	})

	t.Run("unsupported value", func(t *testing.T) {
		assert.Error(t, rel.SetSimpleValue(42))
	})
}

func TestMorphToUnsavedTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	comment := create(t, f.comments, "c1")
	rel := &MorphTo{
		Parent: comment, ForeignKey: "commentable_id", MorphType: "commentable_type",
		Name: "commentable", Resolve: f.store.Query,
	}

	draft := f.pages.New(map[string]halcyon.Value{"fileName": halcyon.String("draft")})
	require.NoError(t, rel.SetSimpleValue(draft))
	id, _ := rel.SimpleValue()
	assert.Equal(t, "draft.htm", id)

	// The target is renamed before its first save; the association follows.
	draft.SetFileName("final")
	require.NoError(t, draft.Save(ctx))
	id, _ = rel.SimpleValue()
	assert.Equal(t, "final.htm", id)

	require.NoError(t, comment.Save(ctx))
	assert.Equal(t, halcyon.String("final.htm"), find(t, f.comments, "c1").Get("commentable_id"))
}

func TestMorphMany(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	page := create(t, f.pages, "blog")
	for _, name := range []string{"c1", "c2", "c3"} {
		create(t, f.comments, name)
	}

	rel := &MorphMany{
		Parent:     page,
		Related:    f.comments,
		ForeignKey: "commentable_id",
		MorphType:  "commentable_type",
		MorphClass: "page",
		Name:       "comments",
	}

	names := func() []string {
		models, err := rel.Get(ctx)
		require.NoError(t, err)
		var out []string
		for _, m := range models {
			out = append(out, m.FileName())
		}
		return out
	}

	require.NoError(t, rel.SetSimpleValue(ctx, []string{"c1", "c2"}))
	assert.Equal(t, []string{"c1.htm", "c2.htm"}, rel.SimpleValue())
	assert.Empty(t, names(), "nothing is written before the parent saves")

	require.NoError(t, page.Save(ctx))
	assert.Equal(t, []string{"c1.htm", "c2.htm"}, names())

	require.NoError(t, rel.SetSimpleValue(ctx, []*halcyon.Model{find(t, f.comments, "c3")}))
	require.NoError(t, page.Save(ctx))
	assert.Equal(t, []string{"c3.htm"}, names())

	c1 := find(t, f.comments, "c1")
	assert.True(t, c1.Get("commentable_id").IsNull())
	assert.True(t, c1.Get("commentable_type").IsNull())

	require.NoError(t, rel.SetSimpleValue(ctx, nil))
	assert.Nil(t, rel.SimpleValue())
	require.NoError(t, page.Save(ctx))
	assert.Empty(t, names())
}
