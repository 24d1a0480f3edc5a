package main

import "github.com/fibhq/outbox-bridge/cmd"

func main() {
	cmd.Execute()
}
