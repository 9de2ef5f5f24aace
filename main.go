package main

import "github.com/AvaProtocol/aa-bridge/cmd"

func main() {
	cmd.Execute()
}
