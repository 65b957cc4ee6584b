package main

import "github.com/ValentinKolb/dTX/cmd"

func main() {
	cmd.Execute()
}
