package main

import "github.com/ppiankov/stancewatch/internal/cli"

func main() {
	cli.Execute()
}
