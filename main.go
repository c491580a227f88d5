package main

import "github.com/samogod/patentvae/cmd"

func main() {
	cmd.Execute()
}
