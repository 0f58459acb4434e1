// Command ternbase-lookup queries the database with supplied arguments.
//
// A numeric argument (decimal, hexadecimal or octal) shows the transform
// indexed by id; anything else performs a named lookup through the
// transform trie.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boolforge/ternbase/store"
	"github.com/boolforge/ternbase/transform"
)

func main() {
	var database string

	cmd := &cobra.Command{
		Use:           "ternbase-lookup [flags] <transform>...",
		Short:         "look up transforms by id or name",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(database, args)
		},
	}
	cmd.Flags().StringVarP(&database, "database", "D", "ternbase.db", "database file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(database string, args []string) error {
	db, err := store.Open(database, false)
	if err != nil {
		return err
	}
	defer db.Close()

	if db.NumTransform == 0 {
		return fmt.Errorf("missing transform section: %s", database)
	}

	for _, arg := range args {
		lookup(db, arg)
	}
	return nil
}

func lookup(db *store.Database, arg string) {
	if tid64, err := strconv.ParseUint(strings.TrimSpace(arg), 0, 32); err == nil {
		tid := uint32(tid64)
		if tid >= db.NumTransform {
			fmt.Printf("tid=%d not found\n", tid)
			return
		}
		rid := db.Transforms.RevIDs[tid]
		fmt.Printf("fwd=%d:%s rev=%d:%s\n", tid, db.Transforms.FwdName(tid), rid, db.Transforms.FwdName(rid))
		return
	}

	for i := 0; i < len(arg); i++ {
		if arg[i] < 'a' || arg[i] >= 'a'+transform.SlotCount {
			fmt.Printf("invalid transform: %q\n", arg)
			return
		}
	}

	tid, ok := db.Transforms.LookupFwd(arg)
	if !ok {
		fmt.Printf("transform %q not found\n", arg)
		return
	}
	rid := db.Transforms.RevIDs[tid]
	fmt.Printf("fwd=%d:%s rev=%d:%s\n", tid, db.Transforms.FwdName(tid), rid, db.Transforms.FwdName(rid))
}
