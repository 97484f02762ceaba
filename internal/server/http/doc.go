// Package httpserver is the REST gateway of the farm controller: clients
// submit and query invocations, remote processors long-poll for work and
// report completions, and /metrics exposes the Prometheus registry.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
