package main

import "github.com/blinktext/internal/cli"

func main() {
	cli.Execute()
}
