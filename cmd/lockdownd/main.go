package main

import "github.com/oshokin/lockdown/cmd/lockdownd/cmd"

func main() {
	cmd.Execute()
}
