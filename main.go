package main

import "github.com/chukul/ssoctl/cmd"

func main() {
	cmd.Execute()
}
