// Package volt is a small embedded HTTP server for devices and appliances:
// a dispatcher that matches requests against an ordered list of endpoints,
// a two-level middleware chain, chunked body and upload handling, static
// file serving with precompressed variants, and push clients over
// Server-Sent Events and WebSocket.
//
// # Quick Start
//
// Create an application with volt.New(), register endpoints and call Run()
// to start the HTTP server:
//
//	app := volt.New(
//	    volt.WithLogger("voltd", volt.RequestIDExtractor()),
//	    volt.WithMiddleware(
//	        middlewares.RequestID(),
//	        middlewares.Recover(),
//	    ),
//	    volt.WithRoutes(device.NewHandler(store)),
//	)
//
//	if err := app.Run(":8080"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Endpoints
//
// Endpoints are tried in the order they were registered. Register the most
// specific ones first:
//
//	type DeviceHandler struct {
//	    store *Store
//	}
//
//	func (h *DeviceHandler) Routes(d *volt.Dispatcher) {
//	    d.GET("/api/device", h.show)
//	    d.POST("/api/relay/*", h.toggle).SetFilter(volt.LocalOnlyFilter)
//	    d.Static("/", os.DirFS("/www"))
//	}
//
//	func (h *DeviceHandler) toggle(req *volt.Request, res *volt.Response) error {
//	    on := volt.ParamValue[bool](req, "on")
//	    if err := h.store.SetRelay(req.Path(), on); err != nil {
//	        return volt.ErrBadRequest("unknown relay", volt.WithError(err))
//	    }
//	    return res.SendJSON(http.StatusOK, map[string]bool{"on": on})
//	}
//
// # Middleware
//
// Middleware receive the request, the response and a next function.
// Returning without calling next ends the chain:
//
//	volt.MiddlewareFunc(func(req *volt.Request, res *volt.Response, next volt.Next) error {
//	    if req.Header("X-Api-Key") != key {
//	        return volt.ErrUnauthorized("missing key")
//	    }
//	    return next()
//	})
//
// # Push
//
// EventSource and WebSocket keep their clients in a registry and broadcast
// to all of them:
//
//	events := volt.NewEventSource(log)
//	d.GET("/events", events.ServeRequest)
//	events.Send("21.5", "temperature", 0, 0)
//
// # Shutdown
//
// Run handles SIGINT/SIGTERM for graceful shutdown. Register cleanup with
// WithShutdown or the ShutdownHook run option:
//
//	app.Run(":8080", volt.ShutdownHook(redis.Shutdown(client)))
//
// # Escape Hatch
//
// A Dispatcher is a plain http.Handler and can be mounted on any server
// without App:
//
//	d := volt.NewDispatcher(volt.DispatcherConfig{Logger: log})
//	srv := &http.Server{Handler: d, ConnContext: d.Conns().ConnContext, ConnState: d.Conns().ConnState}
package volt
