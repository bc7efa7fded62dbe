package main

import "github.com/brodo/bundle-config/cmd"

func main() {
	cmd.Execute()
}
