// icore — DICOM de-identification and retrieval pipeline orchestrator.
package main

import (
	"github.com/ppiankov/icore/internal/cli"
)

func main() {
	cli.Execute()
}
