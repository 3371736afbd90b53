package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tmhinkle/fitgateway/internal/zwo"
)

// zwogen compiles a workout description in JSON to a Zwift .zwo file,
// either to stdout or next to the input file.
func main() {
	inPath := flag.String("in", "", "path to the workout JSON file, - for stdin")
	outDir := flag.String("out", "", "output directory, empty writes to stdout")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: zwogen -in workout.json [-out dir]")
		os.Exit(2)
	}

	var input []byte
	var err error
	if *inPath == "-" {
		input, err = io.ReadAll(os.Stdin)
	} else {
		input, err = os.ReadFile(*inPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %s\n", err)
		os.Exit(1)
	}

	var workout zwo.Workout
	if err := json.Unmarshal(input, &workout); err != nil {
		fmt.Fprintf(os.Stderr, "parse workout: %s\n", err)
		os.Exit(1)
	}

	compiled := zwo.Compile(&workout)

	if *outDir == "" {
		if _, err := os.Stdout.Write(compiled); err != nil {
			fmt.Fprintf(os.Stderr, "write output: %s\n", err)
			os.Exit(1)
		}
		fmt.Println()
		return
	}

	outPath := filepath.Join(*outDir, workout.Filename())
	if err := os.WriteFile(outPath, compiled, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %s\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("written: %s\n", outPath)
}
