package main

import "github.com/theakshaypant/crmcal/cmd/crmcal/cmd"

func main() {
	cmd.Execute()
}
