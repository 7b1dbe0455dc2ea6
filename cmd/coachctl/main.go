// Package main is the entry point for the coachctl command line tool.
package main

import "github.com/capitalize-ai/journal-coach/internal/cli"

func main() {
	cli.Execute()
}
