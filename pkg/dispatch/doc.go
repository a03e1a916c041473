// Package dispatch routes channel-tagged payloads to subscribers.
//
// Channel names form a hierarchy separated by ':' (for example
// "process:web-01:restart"). Subscribers register a pattern; a pattern
// segment of "*" matches exactly one channel segment and a trailing "**"
// matches the rest of the name. Matching is an explicit, tested function
// rather than an emitter library convention.
//
// Dispatch is synchronous and in registration order: Emit returns only
// after every matching subscriber has run, so message N is fully handled
// before message N+1 is processed.
package dispatch
