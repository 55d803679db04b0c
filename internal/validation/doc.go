// Package validation holds the result types exchanged between the mutation
// kernel and pluggable validators.
//
// A validator returns a ResultList for every attempted operation. The kernel
// only looks at OperationPermitted, combined with AND semantics; severity
// and message are carried to listeners unchanged.
package validation
