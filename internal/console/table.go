package console

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shineum/debt-notifier/internal/roster"
)

// WriteRecords prints records as an aligned table in the given order.
func WriteRecords(w io.Writer, records []roster.StudentRecord) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tEMAIL\tDISCIPLINE\tFACULTY\tLEVEL")
	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Email, r.Discipline, r.Faculty, r.Level)
	}
	_ = tw.Flush()
}
