// Command spectrum-helper reads one JSON analysis request on stdin,
// decodes the referenced audio file, and emits a JSON analysis artifact
// on stdout. It takes no arguments and keeps no state between runs.
package main

import (
	"os"

	"github.com/tz-player/spectrum-helper/helper"
)

func main() {
	os.Exit(helper.New().Run(os.Stdin, os.Stdout, os.Stderr))
}
