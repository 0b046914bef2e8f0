package main

import "github.com/crosslabs/camhub/cmd/camhub/commands"

func main() {
	commands.Execute()
}
