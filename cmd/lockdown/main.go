package main

import "github.com/oshokin/lockdown/cmd/lockdown/cmd"

func main() {
	cmd.Execute()
}
