package main

import "github.com/ValentinKolb/kstore/cmd"

func main() {
	cmd.Execute()
}
