// Command trail runs the Trail voting ledger.
package main

import "github.com/tutu-network/trail/internal/cli"

func main() {
	cli.Execute()
}
