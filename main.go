package main

import (
	"torb/cmd"
)

func main() {
	cmd.Execute()
}
