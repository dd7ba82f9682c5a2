package main

import "alertwatch/internal/cli"

func main() {
	cli.Execute()
}
