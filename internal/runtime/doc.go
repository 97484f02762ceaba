// Package runtime wires storage, metrics, the completion journal and the
// scheduler into a single controller instance.
//
//	cfg := config.Default()
//	cfg.InMemory = true
//	rt, err := runtime.Open(runtime.Options{Config: cfg})
//	if err != nil { /* handle */ }
//	defer rt.Close()
//	go rt.Run(ctx)
//	_ = rt.Scheduler().Schedule("CL1", invocation.Request{ID: "I-1-1"})
package runtime
