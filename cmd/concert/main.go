package main

import "github.com/Vasu1712/scenyx-live/internal/cli"

func main() {
	cli.Execute()
}
