// Package main provides the caretrack CLI.
package main

import "github.com/mesh-intelligence/caretrack/internal/cli"

func main() {
	cli.Execute()
}
