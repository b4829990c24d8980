package main

import "github.com/nextlevelbuilder/groupclaw/cmd"

func main() {
	cmd.Execute()
}
