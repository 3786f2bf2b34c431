// Package main provides the entry point for the turnover CLI.
package main

import (
	"github.com/u4s/turnover-cli/internal/cli"
)

func main() {
	cli.Execute()
}
