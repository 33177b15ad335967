package main

import "github.com/materialdesk/apiserver/cmd"

func main() {
	cmd.Execute()
}
