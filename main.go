/*
Copyright 2023 Markus Papenbrock
*/

package main

import "github.com/mpapenbr/ams2-telemetry-go/cmd"

func main() {
	cmd.Execute()
}
