// Package halcyon stores templates as flat files and exposes them as models.
//
// A template file has up to three sections separated by "==" lines:
//
//	title = "Home"
//	url = "/"
//
//	[viewBag]
//	layout = "default"
//	==
//	<?php
//	function onStart() { }
//	?>
//	==
//	<h1>Welcome</h1>
//
// A Datasource (FileDatasource or DbDatasource) keeps the files of one theme.
// A Resolver maps theme names to datasources, and a Store combines the
// resolver with the registered model Types, a Cache and a validator:
//
//	resolver := halcyon.NewResolver(map[string]halcyon.Datasource{"theme1": ds})
//	resolver.SetDefaultDatasource("theme1")
//	store := halcyon.NewStore(resolver)
//	store.Register(halcyon.Type{Name: "page", Directory: "pages", Compound: true})
//
//	pages, _ := store.Query("page")
//	home, err := pages.Find(ctx, "home") // pages/home.htm
package halcyon
