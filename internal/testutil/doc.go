// Package testutil provides fixtures shared by package tests: a recording
// listener and a scripted validator.
package testutil
