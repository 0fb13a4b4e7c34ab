// Package domain defines the core business entities and value objects for
// Legisync.
//
// This package contains pure domain types with no external dependencies beyond
// the standard library. All business rules and invariants are enforced here:
// stable record identity, fetch partitioning, rate limit configuration, error
// classification, and run reporting.
//
// # Architectural Position
//
// The domain package sits at the centre of the hexagonal architecture. It is
// imported by every other layer (ports, services, adapters, connectors) and
// imports none of them. Changes here ripple outward, so types in this package
// should remain small, serialisable, and free of behaviour that belongs in a
// service.
//
// # Import Rules
//
//   - MAY import: standard library only
//   - MAY NOT import: any other legisync package, external libraries
package domain
