package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, badColor.Sprint("error: ")+err.Error())
		os.Exit(1)
	}
}
