// Package api handles incoming HTTP requests, request validation and
// response formatting. It adapts the task engine, the capability registry
// and the auth services to the HTTP surface: quick task creation, polling,
// cancellation, capability discovery and login.
package api
