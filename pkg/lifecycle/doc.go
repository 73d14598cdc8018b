// Package lifecycle coordinates the life of one outbound response.
//
// A single response can be driven to completion by several racing sources:
// the producer finishing, an upstream failure, the client going away, and up
// to three timeout watchdogs. This package guarantees that response headers
// are written at most once and that the response is finalized exactly once,
// whichever source wins.
//
// # Components
//
//   - Sink: latch-guarded wrapper around a Transport (HTTP or WebSocket).
//     Every write reports success as a bool; after End or Destroy all writes
//     are no-ops.
//   - TimerRegistry: named watchdogs. Renewable timers rearm themselves while
//     the request keeps producing output.
//   - Coordinator: Active -> Terminating -> Terminated state machine. The
//     first Terminate call runs teardown; every caller gets the same Future.
//   - Emitter: event-stream framing on top of the Sink, plus Run, an error
//     boundary that converts producer failures into an error frame or a
//     structured error response.
//   - Ingress: creates all of the above for an inbound HTTP request and wires
//     client disconnects into Terminate.
//
// # Teardown
//
// Teardown runs once, in the goroutine that won the Terminate race:
//
//  1. all timers are cleared
//  2. OnTerminate callbacks run in registration order, each isolated
//  3. the sink is ended, delivering a pending fault if one was given
//  4. the state becomes Terminated
//  5. completion is reported to the Reporter (the diagnostics registry)
//
// # Usage
//
//	coord := ingress.Begin(w, r, requestID, lifecycle.KindIncremental)
//	em := coord.Emitter()
//	em.Run(func(ctx context.Context, em *lifecycle.Emitter) error {
//	    if !em.Start(nil) {
//	        return nil
//	    }
//	    for chunk := range chunks {
//	        if !em.Emit(chunk, "") {
//	            return nil
//	        }
//	    }
//	    em.EmitTerminalSentinel()
//	    return nil
//	}, nil)
//	<-coord.Done()
package lifecycle
