// Command stafilter compiles SensorThings filters to DuckDB SQL.
package main

import (
	"os"

	"github.com/hugr-lab/staquery/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
