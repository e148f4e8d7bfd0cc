// Package diff renders readable differences for test failures.
package diff

import (
	"strings"

	"github.com/k0kubun/pp/v3"
	"github.com/kylelemons/godebug/diff"
)

// Values diffs the exported fields of want and got, or returns "" when they
// print the same.
func Values[T any](want T, got T) string {
	printer := pp.New()
	printer.SetExportedOnly(true)
	printer.SetColoringEnabled(false)
	return render(diff.Diff(printer.Sprint(got), printer.Sprint(want)))
}

// Text diffs two buffer contents line by line.
func Text(want, got string) string {
	return render(diff.Diff(got, want))
}

func render(d string) string {
	if d == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nto turn ACTUAL into EXPECTED:\n\n")
	sb.WriteString("add:    ➕\n")
	sb.WriteString("remove: ➖\n\n")
	d = strings.ReplaceAll(d, "\n-", "\n➖")
	d = strings.ReplaceAll(d, "\n+", "\n➕")
	if strings.HasPrefix(d, "-") {
		d = "➖" + d[1:]
	} else if strings.HasPrefix(d, "+") {
		d = "➕" + d[1:]
	}
	sb.WriteString(d)
	return sb.String()
}
