package main

import (
	"github.com/ukcgt/cgtcalc/cmd"
)

func main() {
	cmd.Execute()
}
