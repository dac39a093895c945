package main

import "github.com/Mohsinsiddi/tkn/cmd"

func main() {
	cmd.Execute()
}
