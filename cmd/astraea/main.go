package main

import "github.com/mamazu/astraea/cli"

func main() {
	cli.Execute()
}
