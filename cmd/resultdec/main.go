// Command resultdec decodes a compact result artifact back into readable
// JSON, for operators inspecting stored artifacts offline.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/voicelingua/voicelingua/internal/codec"
)

func main() {
	input := flag.String("in", "", "artifact file to decode (default: stdin)")
	flag.Parse()

	var (
		data []byte
		err  error
	)
	if *input == "" || *input == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*input)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "resultdec: read input: %v\n", err)
		os.Exit(1)
	}

	record, err := codec.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resultdec: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "resultdec: render record: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
