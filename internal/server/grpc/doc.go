// Package grpcserver hosts the farm.v1.Farm gRPC service. It offers the
// same client and processor operations as the REST gateway, plus the Work
// stream that holds a remote processor on one connection: assignments it
// has not completed when the stream ends go back to the queue.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := grpcserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":9090")
package grpcserver
