// Package rest exposes SQL Server tables and views as REST endpoints
// without per-table code.
//
// Each configured target is driven by a Supervisor that connects (retrying
// forever on a fixed interval), inspects the catalog for objects matching
// the target's name filter, and merges them into a shared Registry. The
// Server dispatches requests against that registry, and the
// DocumentBuilder republishes an OpenAPI description whenever the
// registered set changes.
//
// Objects are exposed at /{target}/{object}:
//
//	GET    /{target}/{object}        list; per-column equality filters,
//	                                 order=col.(asc|desc), limit, offset
//	GET    /{target}/{object}/{key}  fetch by primary key
//	POST   /{target}/{object}        insert, returns the created row
//	PUT    /{target}/{object}/{key}  update, returns the updated row
//	DELETE /{target}/{object}/{key}  delete, returns the deleted row
//
// Views get only the list route. Keyed routes require a single-column
// primary key. Mutations on tables with enabled triggers cannot use an
// OUTPUT clause, so the affected row is re-fetched by identity or key, or
// captured in a per-execution staging table when neither exists.
//
// Example usage:
//
//	registry := rest.NewRegistry()
//	docs := rest.NewDocumentBuilder(registry, "", rest.DocumentInfo{Title: "sqlrest"})
//	server := rest.NewServer(registry, docs, "", logger)
//	for _, t := range cfg.Targets {
//		go rest.NewSupervisor(t, registry, docs, logger).Run(ctx)
//	}
//	log.Fatal(server.Start(":8080"))
package rest
