// Package bootstrap runs the best-effort startup checks of the server in
// the background.
//
// Every step runs regardless of earlier failures and none of them can
// stop the server. The caller receives a Result describing each step and
// decides how to report it.
package bootstrap
