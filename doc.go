/*
Package patternbus provides pattern addressed messaging between the parts of an application.

Messages are addressed with a [pattern.Pattern], a set of key/value pairs like {role: "user", cmd: "create"}.
A handler registered on a pattern receives every message whose pattern includes all of its pairs, so more general handlers see more messages.
When more than one handler matches, the one with the most pairs is the most specific.

The [Bus] combines the three channel variants from the channel package:
  - Events are broadcast to every matching observer.
  - Commands are delivered to a single handler, and their completion is broadcast as an [Action] event.
  - Queries are delivered to a single handler, and its result is returned to the sender.

[NewInProcess] creates a [Bus] that delivers messages within the process.
Handlers always run after the sending call returns, and their failures are reported on the channels' error streams, see [Bus.OnError].

[pattern.Pattern]: https://pkg.go.dev/github.com/saylorsolutions/patternbus/pattern#Pattern
*/
package patternbus
