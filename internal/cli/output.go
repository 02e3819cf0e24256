package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError(fmt.Errorf("marshal output: %w", err))
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// emit writes v as JSON when --json is set and calls text otherwise.
func (e *env) emit(v any, text func(w io.Writer)) error {
	if e.flags.jsonMode {
		return printJSON(e.out, v)
	}
	text(e.out)
	return nil
}
