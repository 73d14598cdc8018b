// Package diagnostics tracks every in-flight request in the process and
// reports the ones that look stuck, leak resources, or were terminated by
// racing sources.
//
// The Registry implements lifecycle.Reporter. Coordinators register on
// creation, report timeout and race events while running, and call
// Complete once teardown finishes. Completed rows stay readable for a grace
// period (5s by default) and are then evicted.
//
// A request is hanging when any of these holds:
//
//   - age over 2 minutes
//   - no activity for over 1 minute
//   - more than 2 timeout events
//   - more than 10 tracked resources
//
// A resource key is leaked when every request that tracked it has left the
// registry without releasing it.
//
// The Sweeper runs on a cron schedule (every 30s by default), evicts expired
// rows, runs both detectors and logs when a rate crosses its alert
// threshold. Handler exposes the same data over HTTP together with forced
// cleanup, which terminates every live request with reason force_cleanup
// before clearing the table.
//
// One Registry serves the whole process:
//
//	reg := diagnostics.Init(diagnostics.Options{Recorder: collector})
//	...
//	diagnostics.Default().Metrics()
package diagnostics
