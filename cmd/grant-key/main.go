// Package main provides a one-shot utility for operator grant key generation.
//
// It emits the asymmetric keypair used to verify privileged governance
// operations.
package main

import (
	"os"

	"github.com/emberwake/warden/internal/platform/config"
	"github.com/emberwake/warden/internal/tools/grantkey"
)

func main() {
	if err := grantkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate operator grant key: %v", err)
	}
}
