package main

import "github.com/sessionbridge/sessionbridge/cmd"

func main() {
	cmd.Execute()
}
