// Package pg bootstraps PostgreSQL access on top of pgx/v5: a retrying
// connection pool, goose migrations run over that pool, a health check and
// error classification helpers.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, log); err != nil {
//		return err
//	}
//
// Migrate reads from the given fs.FS, typically an embedded directory, and
// falls back to Config.MigrationsPath on disk when it is nil.
package pg
