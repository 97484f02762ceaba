package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	cfgpkg "github.com/appirio-tech/arena-farm-client/internal/config"
	"github.com/appirio-tech/arena-farm-client/internal/rpc"
	"github.com/appirio-tech/arena-farm-client/internal/runtime"
	logpkg "github.com/appirio-tech/arena-farm-client/pkg/log"
)

const bufSize = 1 << 20

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
}

func newTestConn(t *testing.T) (*grpc.ClientConn, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.InMemory = true
	logger := logpkg.NewLogger(logpkg.WithLevel(logpkg.ErrorLevel), logpkg.WithOutput(logpkg.NullOutput{}))
	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	srv := New(rt, logger)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer(srv.GRPC())),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		_ = rt.Scheduler().Close()
		srv.Close()
		_ = rt.Close()
	})
	return conn, rt
}

func call(t *testing.T, conn *grpc.ClientConn, method string, in any, out any) error {
	t.Helper()
	req, err := rpc.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, rpc.FullMethod(method), req, resp); err != nil {
		return err
	}
	if out != nil {
		if err := rpc.Decode(resp, out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return nil
}

type countResp struct {
	Count int `json:"count"`
}

type assignmentResp struct {
	Token     string `json:"token"`
	Key       string `json:"key"`
	ClientID  string `json:"clientId"`
	RequestID string `json:"requestId"`
	Payload   any    `json:"payload"`
}

func TestHealthOverGRPC(t *testing.T) {
	conn, _ := newTestConn(t)
	var out struct {
		Status string `json:"status"`
	}
	if err := call(t, conn, rpc.MethodHealth, struct{}{}, &out); err != nil {
		t.Fatalf("health: %v", err)
	}
	if out.Status != "ok" {
		t.Fatalf("status: %q", out.Status)
	}
}

func TestPendingLifecycleOverGRPC(t *testing.T) {
	conn, _ := newTestConn(t)

	var sub struct {
		Key       string `json:"key"`
		RequestID string `json:"requestId"`
	}
	for _, id := range []string{"I-1-a", "I-1-b", "I-2-a"} {
		if err := call(t, conn, rpc.MethodSubmit, map[string]any{"client": "CL1", "id": id}, &sub); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
	if sub.RequestID != "I-2-a" || sub.Key == "" {
		t.Fatalf("submitted: %+v", sub)
	}

	err := call(t, conn, rpc.MethodSubmit, map[string]any{"client": "CL1", "id": "I-1-a"}, nil)
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("duplicate: %v", err)
	}
	err = call(t, conn, rpc.MethodSubmit, map[string]any{"client": "CL1", "id": "a.b"}, nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("delimiter in id: %v", err)
	}

	var cnt countResp
	if err := call(t, conn, rpc.MethodCount, map[string]any{"client": "CL1", "prefix": "I-1-"}, &cnt); err != nil {
		t.Fatalf("count: %v", err)
	}
	if cnt.Count != 2 {
		t.Fatalf("count: %d", cnt.Count)
	}

	var list struct {
		Requests []struct {
			RequestID string `json:"requestId"`
		} `json:"requests"`
	}
	if err := call(t, conn, rpc.MethodList, map[string]any{"client": "CL1", "prefix": "I-1-"}, &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Requests) != 2 || list.Requests[0].RequestID != "I-1-a" || list.Requests[1].RequestID != "I-1-b" {
		t.Fatalf("list: %+v", list)
	}

	var cancelled struct {
		Cancelled int `json:"cancelled"`
	}
	if err := call(t, conn, rpc.MethodCancel, map[string]any{"client": "CL1", "prefix": "I-1-"}, &cancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Cancelled != 2 {
		t.Fatalf("cancelled: %d", cancelled.Cancelled)
	}
	if err := call(t, conn, rpc.MethodCount, map[string]any{"client": "CL1"}, &cnt); err != nil {
		t.Fatalf("count: %v", err)
	}
	if cnt.Count != 1 {
		t.Fatalf("count after cancel: %d", cnt.Count)
	}
}

func TestPollCompleteOverGRPC(t *testing.T) {
	conn, _ := newTestConn(t)

	var empty assignmentResp
	if err := call(t, conn, rpc.MethodPoll, map[string]any{"processorId": "p1", "wait_ms": 20}, &empty); err != nil {
		t.Fatalf("empty poll: %v", err)
	}
	if empty.Token != "" {
		t.Fatalf("empty poll returned %+v", empty)
	}

	if err := call(t, conn, rpc.MethodSubmit, map[string]any{"client": "CL1", "id": "job-1", "invocation": "x"}, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	var a assignmentResp
	if err := call(t, conn, rpc.MethodPoll, map[string]any{"processorId": "p1", "wait_ms": 500}, &a); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if a.Token == "" || a.RequestID != "job-1" || a.Payload != "x" {
		t.Fatalf("assignment: %+v", a)
	}

	done := map[string]any{"processorId": "p1", "token": a.Token, "value": "done"}
	if err := call(t, conn, rpc.MethodComplete, done, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := call(t, conn, rpc.MethodComplete, done, nil); status.Code(err) != codes.NotFound {
		t.Fatalf("second complete: %v", err)
	}
	if err := call(t, conn, rpc.MethodComplete, map[string]any{"processorId": "p1"}, nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing token: %v", err)
	}

	var journal struct {
		Entries []struct {
			RequestID string `json:"requestId"`
		} `json:"entries"`
	}
	if err := call(t, conn, rpc.MethodCompleted, map[string]any{"client": "CL1"}, &journal); err != nil {
		t.Fatalf("completed: %v", err)
	}
	if len(journal.Entries) != 1 || journal.Entries[0].RequestID != "job-1" {
		t.Fatalf("journal: %+v", journal)
	}
}

func TestInvokeOverGRPC(t *testing.T) {
	conn, _ := newTestConn(t)

	err := call(t, conn, rpc.MethodInvoke, map[string]any{"client": "CL1", "id": "slow", "timeout_ms": 20}, nil)
	if status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("timeout: %v", err)
	}

	errc := make(chan error, 1)
	var resp struct {
		RequestID   string `json:"requestId"`
		Value       any    `json:"value"`
		ProcessorID string `json:"processorId"`
	}
	go func() {
		errc <- call(t, conn, rpc.MethodInvoke, map[string]any{"client": "CL1", "id": "fast", "invocation": 7, "timeout_ms": 1500}, &resp)
	}()
	// "slow" is still pending and older, so it is dispatched first.
	for _, want := range []string{"slow", "fast"} {
		var a assignmentResp
		if err := call(t, conn, rpc.MethodPoll, map[string]any{"processorId": "p9", "wait_ms": 1000}, &a); err != nil {
			t.Fatalf("poll %s: %v", want, err)
		}
		if a.RequestID != want {
			t.Fatalf("got %s want %s", a.RequestID, want)
		}
		if err := call(t, conn, rpc.MethodComplete, map[string]any{"processorId": "p9", "token": a.Token, "value": a.Payload}, nil); err != nil {
			t.Fatalf("complete %s: %v", want, err)
		}
	}
	if err := <-errc; err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.RequestID != "fast" || resp.Value != float64(7) || resp.ProcessorID != "p9" {
		t.Fatalf("response: %+v", resp)
	}
}

func TestClientPriorityOverGRPC(t *testing.T) {
	conn, rt := newTestConn(t)
	var view struct {
		Priority          *int `json:"priority"`
		EffectivePriority int  `json:"effectivePriority"`
	}
	if err := call(t, conn, rpc.MethodSetPriority, map[string]any{"client": "CL1", "priority": 0}, &view); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if view.Priority == nil || *view.Priority != 0 || rt.Scheduler().Priority("CL1") != 0 {
		t.Fatalf("view: %+v", view)
	}
	err := call(t, conn, rpc.MethodSetPriority, map[string]any{"client": "CL1", "priority": 99}, nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("out of range: %v", err)
	}
}

func TestWorkStreamReleasesOutstandingOnClose(t *testing.T) {
	conn, rt := newTestConn(t)
	if err := call(t, conn, rpc.MethodSubmit, map[string]any{"client": "CL1", "id": "keep", "invocation": "k"}, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := rpc.OpenWork(ctx, conn)
	if err != nil {
		t.Fatalf("open work: %v", err)
	}
	send := func(v any) {
		in, err := rpc.Encode(v)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := stream.Send(in); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	send(map[string]any{"type": rpc.WorkHello, "processorId": "w1"})
	send(map[string]any{"type": rpc.WorkReady})
	msg, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	var a struct {
		Type      string `json:"type"`
		Token     string `json:"token"`
		RequestID string `json:"requestId"`
	}
	if err := rpc.Decode(msg, &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Type != rpc.WorkAssignment || a.RequestID != "keep" || a.Token == "" {
		t.Fatalf("assignment: %+v", a)
	}
	if st := rt.Scheduler().Stats(); st.Inflight != 1 {
		t.Fatalf("stats while assigned: %+v", st)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := rt.Scheduler().Stats()
		if st.Inflight == 0 && st.Pending == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("assignment not released: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}

	var again assignmentResp
	if err := call(t, conn, rpc.MethodPoll, map[string]any{"processorId": "p2", "wait_ms": 500}, &again); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if again.RequestID != "keep" {
		t.Fatalf("requeued assignment: %+v", again)
	}
}

func TestWorkStreamAcksCompletion(t *testing.T) {
	conn, _ := newTestConn(t)
	if err := call(t, conn, rpc.MethodSubmit, map[string]any{"client": "CL1", "id": "w-1", "invocation": "v"}, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stream, err := rpc.OpenWork(ctx, conn)
	if err != nil {
		t.Fatalf("open work: %v", err)
	}
	exchange := func(v any, out any) {
		t.Helper()
		in, _ := rpc.Encode(v)
		if err := stream.Send(in); err != nil {
			t.Fatalf("send: %v", err)
		}
		if out == nil {
			return
		}
		msg, err := stream.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if err := rpc.Decode(msg, out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	exchange(map[string]any{"type": rpc.WorkHello, "processorId": "w1"}, nil)
	var a assignmentResp
	exchange(map[string]any{"type": rpc.WorkReady}, &a)

	var ack struct {
		Type  string `json:"type"`
		Token string `json:"token"`
		Error string `json:"error"`
		Code  int    `json:"code"`
	}
	exchange(map[string]any{"type": rpc.WorkComplete, "token": a.Token, "value": "ok"}, &ack)
	if ack.Type != rpc.WorkAck || ack.Token != a.Token || ack.Error != "" {
		t.Fatalf("ack: %+v", ack)
	}
	exchange(map[string]any{"type": rpc.WorkComplete, "token": a.Token, "value": "ok"}, &ack)
	if ack.Error == "" || codes.Code(ack.Code) != codes.NotFound {
		t.Fatalf("second ack: %+v", ack)
	}
}

func TestWorkStreamRequiresHello(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stream, err := rpc.OpenWork(ctx, conn)
	if err != nil {
		t.Fatalf("open work: %v", err)
	}
	in, _ := rpc.Encode(map[string]any{"type": rpc.WorkReady})
	if err := stream.Send(in); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := stream.Recv(); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("recv: %v", err)
	}
}
