// Package connectors provides the machinery shared by every upstream API
// connector: the retry engine, the error taxonomy, JSON transport helpers,
// and the connector registry.
//
// Provider packages (congress, lda) build on this package and implement
// [driven.Connector]. Each provider owns its URL building, response
// decoding, cursor format, and partition enumeration; this package owns
// everything that must behave identically across providers.
//
// # Error Taxonomy
//
// Every fetch failure ends up classified as exactly one of the terminal
// domain errors:
//
//   - domain.ErrRateExceeded: the upstream throttled repeatedly and the
//     throttle retry budget ran out
//   - domain.ErrUpstreamUnavailable: server errors, transport failures, or
//     undecodable responses outlasted the transient retry budget
//   - domain.ErrInvalidRequest: the upstream rejected the request as
//     malformed or unauthorised; retrying cannot help
//
// Classification happens in [Do]; providers return raw *APIError or
// transport errors from their attempt functions and never classify
// themselves, except for failures they know to be terminal up front.
//
// # Retry Behaviour
//
// Throttled responses (429) impose a cool-down on the source's shared rate
// limiter, sized from the Retry-After header, so all workers on that source
// back off together. Transient failures back off exponentially with jitter,
// starting at one second and capped at a minute. Attempt budgets are
// tracked separately for the two classes.
package connectors
