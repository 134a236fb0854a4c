// Package main is the LeapGrid entry point.
package main

import "github.com/leapstack-labs/leapgrid/internal/cli"

func main() {
	cli.Execute()
}
