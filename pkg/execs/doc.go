// Package execs runs external commands with a controlled environment.
//
// Commands only receive a small set of essential variables from the caller
// by default. Other variables must be inherited explicitly, by name or by
// pattern, via [EnvFromSource].
package execs
