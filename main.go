package main

import "github.com/pathakanu/dingbot/internal/cli"

func main() {
	cli.Execute()
}
