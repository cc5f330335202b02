// Package runtime provides a minimal in-process actor substrate for
// multi-agent coordination: agents wrapped as message-handling actors, each
// with a FIFO mailbox, participating in pub/sub topics, with intervention
// handlers able to inspect, modify, or drop in-flight messages.
//
// Each actor instance processes its mailbox strictly sequentially; distinct
// instances run concurrently with respect to each other. Cancellation is
// cooperative and checked only at message-delivery boundaries: an actor
// already mid-invocation when cancellation is requested completes that
// invocation.
package runtime
