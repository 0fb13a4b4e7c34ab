// Package services implements the driving ports: the fetch orchestrator,
// index builder, record query surface, status reporter, and background
// scheduler. Services own the pipeline's coordination logic and reach
// storage and upstreams only through the driven ports.
//
// Services are pure Go with no CGO; their only dependencies beyond the
// ports are run ID generation and metrics counters.
package services
