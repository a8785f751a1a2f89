package main

import (
	"github.com/onflow/flow-dkg-stress/cmd/dkg-stress/cmd"
)

func main() {
	cmd.Execute()
}
