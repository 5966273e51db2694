package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/loykin/librarylink"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

func printProcesses(w io.Writer, recs []librarylink.ProcessRecord, commandLine bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if commandLine {
		_, _ = fmt.Fprintln(tw, "PID\tPATH\tCOMMAND")
	} else {
		_, _ = fmt.Fprintln(tw, "PID\tPATH")
	}
	for _, r := range recs {
		if commandLine {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", r.PID, r.DisplayPath(), r.CommandLine)
			continue
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\n", r.PID, r.DisplayPath())
	}
	_ = tw.Flush()
}

func printApps(w io.Writer, list []librarylink.App) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Application Name\tAUMID")
	_, _ = fmt.Fprintln(tw, "----------------\t-----")
	for _, a := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", a.DisplayName, a.ActivationID)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "\n%d application(s)\n", len(list))
}

func displayPath(p string) string {
	if p == "" {
		return librarylink.ProcessRecord{}.DisplayPath()
	}
	return p
}
