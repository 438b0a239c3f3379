// Package main is the approx command itself.
package main

import (
	"fmt"
	"os"

	"go.viam.com/motionsampling/cli"
)

func main() {
	if err := cli.NewApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
