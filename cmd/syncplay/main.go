package main

import (
	"fmt"
	"os"

	"github.com/weiawesome/wes-io-sync/internal/cli"
)

func main() {
	deps := cli.NewDependencies()
	if err := cli.NewRootCmd(deps).Execute(); err != nil {
		fmt.Fprintf(deps.Err, "❌ %s\n", err)
		os.Exit(1)
	}
}
