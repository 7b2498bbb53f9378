package main

import (
	"encoding/json"
	"net/http"
	"os"
)

// printJSON writes v as indented JSON to stdout, for CLI subcommands run
// in scripted/cron contexts that want to parse the output.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// httpJSON writes v as JSON with status to an HTTP response, matching the
// bridge server's uniform response shape.
func httpJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
