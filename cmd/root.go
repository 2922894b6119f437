package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "storyline"}

	root.AddCommand(aggregateCMD(), linkCMD(), serveCMD(), migrateCMD())
	_ = root.Execute()
}
