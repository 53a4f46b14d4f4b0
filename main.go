package main

import "github.com/roomdrop/roomdrop/cmd"

func main() {
	cmd.Execute()
}
