// Package redis opens go-redis clients for the volt daemon.
//
// It wraps [github.com/redis/go-redis/v9] with pool defaults suited to a
// small device, startup retry with linear backoff, a readiness check and a
// shutdown hook. The session store (pkg/session.RedisStore) takes the client
// returned here.
//
//	client, err := redis.Open(ctx, cfg.RedisURL,
//		redis.WithPoolSize(4),
//		redis.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//
//	app := volt.New(
//		volt.WithSessionStore(session.NewRedisStore(client)),
//		volt.WithHealthChecks(volt.WithReadinessCheck("redis", redis.Healthcheck(client))),
//	)
//	err = app.Run(":8080", volt.ShutdownHook(redis.Shutdown(client)))
//
// Only redis:// and rediss:// URLs are accepted. Errors wrap the sentinels
// ErrEmptyConnectionURL, ErrFailedToParseURL, ErrConnectionFailed and
// ErrHealthcheckFailed with errors.Join.
package redis
