// Command epiflux ingests epidemiological record streams and maintains a
// durable publication-diff artifact and a dense per-key time-series export.
package main

import "github.com/dheyman/epiflux/cmd"

func main() {
	cmd.Execute()
}
