package main

import "github.com/andresmejia3/lotannot/cmd"

func main() {
	cmd.Execute()
}
