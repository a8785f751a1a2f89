package main

import (
	"github.com/onflow/flow-dkg-stress/cmd/dkg-mocknode/cmd"
)

func main() {
	cmd.Execute()
}
