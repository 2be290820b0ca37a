// Package cli provides shared formatting helpers for krscd's show commands.
package cli

// ANSI color helpers used to highlight the boolean-ish fields (up/down,
// valid/invalid) krscd's show commands render.

func Green(s string) string { return "\033[32m" + s + "\033[0m" }
func Red(s string) string   { return "\033[31m" + s + "\033[0m" }
