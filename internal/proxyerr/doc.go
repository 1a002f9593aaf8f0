// Package proxyerr defines the failure taxonomy shared by the negotiators, the
// DNS codec and the redirector.
//
// Every failure is an *Error carrying a Kind. Kinds implement error themselves,
// so callers classify with errors.Is:
//
//	if errors.Is(err, proxyerr.Timeout) { ... }
//
// Errno maps a failure to the errno an intercepted connect(2) would report.
package proxyerr
