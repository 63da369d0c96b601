package main

import "github.com/riftapp/rift/cmd/rift/cmd"

func main() {
	cmd.Execute()
}
