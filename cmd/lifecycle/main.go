// Command lifecycle reconciles apportionment and execution files from the
// command line.
package main

import "github.com/charkitch/general-apportionment/cli"

func main() {
	cli.Execute()
}
