package main

import "github.com/dsrosen/cfrm-console/cmd"

func main() {
	cmd.Execute()
}
