/*
Package channel provides pattern addressed message routing.

A [Channel] keeps two registries keyed by [pattern.Pattern]: mounted transports and handlers.
Sending a message writes it to every transport whose pattern covers the message's pattern.
A transport then delivers it back to the channel, which runs the matching handlers.

There are three variants:
  - [EventChannel] runs every matching observer, and ignores their results.
  - [CommandChannel] runs a single matching handler, and ignores its result.
  - [RequestChannel] runs a single matching handler, and returns its result to the requester.

Handlers are never run inside the call that sent the message.
They are handed to a [dispatch.Scheduler], which is [dispatch.Async] by default.
Use [dispatch.Serial] for event loop style ordering.

Failures that happen after a send returns are emitted on the channel's error stream, see [Channel.OnError].
When nothing observes the stream, errors are logged at warning level instead.

[dispatch.Scheduler]: github.com/saylorsolutions/patternbus/dispatch
*/
package channel
