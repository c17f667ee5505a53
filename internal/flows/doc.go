// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunValidate, RunRefresh, RunLogin, ...) takes a
// typed dependency struct and reports either a result or a classified failure
// kind that the root package maps onto its public errors. Flows hold no state
// and perform I/O only through their dependencies, so they are unit tested with
// plain fakes.
//
// Flows must not import the root campusauth package.
package flows
