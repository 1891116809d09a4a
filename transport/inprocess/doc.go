// Package inprocess provides a channel transport that delivers messages within the process.
//
// Mounted with [channel.Channel.Use], a [Transport] hands messages straight back to the channel's dispatch logic.
// Mounted with [Factory], it's also bound to the channel's registry, and offers a direct API with its own handler namespaces.
// Broadcast, send, request and trigger registrations never collide, even on the same channel.
package inprocess
