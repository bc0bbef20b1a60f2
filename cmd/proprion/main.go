// proprion - scoped S3 credential provisioning for Scaleway and Exoscale.
package main

import (
	"os"

	"github.com/proprion/proprion/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
