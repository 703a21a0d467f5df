package main

import "github.com/tealeaf2/taskgantt/internal/cli"

func main() {
	cli.Execute()
}
