// Package common holds helpers shared by the tool packages: argument
// parsing, caller identification and the instrumentation wrapper.
package common
