package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/roach88/asof/internal/ir"
)

// attrString renders attributes as canonical JSON.
func attrString(attrs ir.Object) string {
	data, err := ir.MarshalValue(attrs)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printRows writes current rows as a table.
func printRows(w io.Writer, rows []ir.Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "(no entities)")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TYPE\tID\tSINCE\tATTRIBUTES")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.EntityType, r.EntityID, r.VersionFrom, attrString(r.Attributes))
	}
	return tw.Flush()
}

// printVersions writes version records as a table.
func printVersions(w io.Writer, recs []ir.VersionRecord) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "(no versions)")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TYPE\tID\tVALID_FROM\tVALID_TO\tATTRIBUTES")
	for _, v := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.EntityType, v.EntityID, v.ValidFrom, v.ValidTo, attrString(v.Attributes))
	}
	return tw.Flush()
}

// printVersion writes a single version record, as returned by mutations.
func printVersion(w io.Writer, op string, v ir.VersionRecord) error {
	_, err := fmt.Fprintf(w, "%s %s %s [%s, %s) %s\n", op, v.EntityType, v.EntityID, v.ValidFrom, v.ValidTo, attrString(v.Attributes))
	return err
}
