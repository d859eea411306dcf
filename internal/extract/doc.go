// Package extract turns acquired markup and style signals into structured
// page fields. Every function here is pure: no I/O, no shared state, and the
// same input always yields the same output.
package extract
