package main

import "github.com/modkit-dev/modkit/cmd"

func main() {
	cmd.Execute()
}
