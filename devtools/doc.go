// Package devtools provides timeline bridges for laco registries.
//
// Recorder is an in-memory bridge that keeps every committed transition and
// can jump back to any of them:
//
//	rec := devtools.NewRecorder()
//	reg := laco.NewRegistry(laco.WithBridge(rec))
//	counter := laco.New(Counter{}, laco.WithRegistry(reg))
//
//	counter.Set(func(c *Counter) { c.Count++ }, "Increment")
//	rec.JumpToAction(0) // back to the initial snapshot
//
// Client streams transitions to a remote monitor over a websocket and
// applies the jump requests the monitor sends back:
//
//	client, err := devtools.Dial(ctx, "ws://localhost:8000/ws", devtools.WithName("app"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	laco.DefaultRegistry.AttachBridge(client)
//
// Server is the monitor side. It accepts client connections, keeps one
// timeline per connection and can ask a client to jump to a recorded entry.
//
// # Wire format
//
// Messages are JSON objects. Clients send
//
//	{"type":"INIT","instanceId":"…","name":"app","payload":{"0":{…}}}
//	{"type":"ACTION","instanceId":"…","action":{"type":"Counter - Increment"},"payload":{"0":{…}}}
//
// and the monitor replies with
//
//	{"type":"DISPATCH","payload":{"type":"JUMP_TO_ACTION"},"state":"{\"0\":{…}}"}
package devtools
