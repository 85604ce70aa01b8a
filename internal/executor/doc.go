/*
Package executor runs tasks on the shared worker pool and publishes their
lifecycle as per-task event streams.

# Lifecycle

A task is Pending from Submit until a worker picks it up, then Running until
it reaches exactly one of Succeeded, Failed or Cancelled. While running it
passes through the fetching, decoding and then processing or analyzing
stages; stages are visible only through the Stage field of progress events.

Every task emits, in order: Started (unless cancelled while pending), zero or
more Progress events with non-decreasing percent, one terminal event, and
Finished. Progress reaches 100 at most once, right before Succeeded.

# Cancellation

Cancel sets the task's token. A pending task is resolved as Cancelled at
once; a running task becomes Cancelled at its next check point. Cancelling a
finished task is a no-op.

# Subscriptions

Subscribe replays the events a task has already emitted before following
new ones, so a subscriber attached after Submit still sees Started. The
channel is closed after Finished or when the context ends.
*/
package executor
