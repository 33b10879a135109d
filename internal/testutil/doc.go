// Package testutil contains helper commands, listeners and monitors used
// across tests to reduce boilerplate when building command trees and
// asserting outcomes. They are not intended for production usage.
package testutil
