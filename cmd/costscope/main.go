package main

import "github.com/costscope/costscope/internal/cli"

func main() {
	cli.Execute()
}
