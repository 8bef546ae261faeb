// Package errors provides the error taxonomy shared by every streamkit package.
// Errors carry a machine-readable code, a message and an optional cause that
// stays reachable through errors.Is and errors.As.
package errors
