package main

import "github.com/example/wb-supply-bot/cmd"

func main() {
	cmd.Execute()
}
