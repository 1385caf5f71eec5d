package main

import "github.com/OpenTraceLab/OpenTraceDAP/cmd/samdap/cmd"

func main() {
	cmd.Execute()
}
