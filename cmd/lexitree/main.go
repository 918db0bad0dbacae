// Command lexitree inspects and edits exported concept tree files.
//
// Usage:
//
//	lexitree print -in tree.json
//	lexitree flatten -in tree.json [-csv out.csv]
//	lexitree find -in tree.json -name solar
//	lexitree find -in tree.json -id 42
//	lexitree leaves -in tree.json
//	lexitree count-types -in tree.json
//	lexitree validate -in tree.json
//	lexitree move -in tree.json -node 42 -to 7 [-out moved.json]
//	lexitree move -in tree.json -node 42 -to-root [-out moved.json]
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"lexigraph/pkg/treefile"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "print":
		err = cmdPrint(os.Args[2:])
	case "flatten":
		err = cmdFlatten(os.Args[2:])
	case "find":
		err = cmdFind(os.Args[2:])
	case "leaves":
		err = cmdLeaves(os.Args[2:])
	case "count-types":
		err = cmdCountTypes(os.Args[2:])
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "move":
		err = cmdMove(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "lexitree:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lexitree <print|flatten|find|leaves|count-types|validate|move> [flags]")
}

func load(fs *flag.FlagSet, in *string, args []string) (*treefile.Export, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *in == "" {
		return nil, fmt.Errorf("-in is required")
	}
	return treefile.Load(*in)
}

func cmdPrint(args []string) error {
	fs := flag.NewFlagSet("print", flag.ExitOnError)
	in := fs.String("in", "", "tree file to read")
	export, err := load(fs, in, args)
	if err != nil {
		return err
	}
	export.Print(os.Stdout)
	return nil
}

func cmdFlatten(args []string) error {
	fs := flag.NewFlagSet("flatten", flag.ExitOnError)
	in := fs.String("in", "", "tree file to read")
	csvPath := fs.String("csv", "", "write rows as CSV to this file instead of stdout")
	export, err := load(fs, in, args)
	if err != nil {
		return err
	}

	rows := export.Flatten()
	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := treefile.WriteCSV(rows, f); err != nil {
			return err
		}
		fmt.Printf("wrote %d rows to %s\n", len(rows), *csvPath)
		return nil
	}

	for _, row := range rows {
		fmt.Printf("%d\t%s\t%s\t%s\n", row.ID, row.Name, row.Type, row.Path)
	}
	return nil
}

func cmdFind(args []string) error {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	in := fs.String("in", "", "tree file to read")
	name := fs.String("name", "", "substring to match against node names")
	id := fs.Int64("id", 0, "node id to look up")
	export, err := load(fs, in, args)
	if err != nil {
		return err
	}

	if *id != 0 {
		node := export.FindByID(*id)
		if node == nil {
			return fmt.Errorf("node id=%d not found", *id)
		}
		fmt.Printf("%s [id=%d] (%s), %d children\n", node.Name, node.ID, node.Type, len(node.Children))
		for _, p := range node.Phrases {
			fmt.Printf("  phrase: %s\n", p)
		}
		return nil
	}

	if *name == "" {
		return fmt.Errorf("one of -name or -id is required")
	}
	matches := export.FindByName(*name)
	if len(matches) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, m := range matches {
		fmt.Printf("%s [id=%d] at %s\n", m.Node.Name, m.Node.ID, m.Path)
	}
	return nil
}

func cmdLeaves(args []string) error {
	fs := flag.NewFlagSet("leaves", flag.ExitOnError)
	in := fs.String("in", "", "tree file to read")
	export, err := load(fs, in, args)
	if err != nil {
		return err
	}
	for _, m := range export.Leaves() {
		fmt.Printf("%s [id=%d] at %s\n", m.Node.Name, m.Node.ID, m.Path)
	}
	return nil
}

func cmdCountTypes(args []string) error {
	fs := flag.NewFlagSet("count-types", flag.ExitOnError)
	in := fs.String("in", "", "tree file to read")
	export, err := load(fs, in, args)
	if err != nil {
		return err
	}

	counts := export.CountTypes()
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("%s\t%d\n", t, counts[t])
	}
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	in := fs.String("in", "", "tree file to read")
	export, err := load(fs, in, args)
	if err != nil {
		return err
	}

	problems := export.Validate()
	if len(problems) == 0 {
		fmt.Println("ok")
		return nil
	}
	for _, p := range problems {
		fmt.Println(p)
	}
	return fmt.Errorf("%d problem(s) found", len(problems))
}

func cmdMove(args []string) error {
	fs := flag.NewFlagSet("move", flag.ExitOnError)
	in := fs.String("in", "", "tree file to read")
	out := fs.String("out", "", "write the result here (default: overwrite -in)")
	node := fs.Int64("node", 0, "id of the node to move")
	to := fs.Int64("to", 0, "id of the new parent")
	toRoot := fs.Bool("to-root", false, "move the node to the top level")
	export, err := load(fs, in, args)
	if err != nil {
		return err
	}

	if *node == 0 {
		return fmt.Errorf("-node is required")
	}
	var newParent *int64
	switch {
	case *toRoot && *to != 0:
		return fmt.Errorf("-to and -to-root are mutually exclusive")
	case *toRoot:
		// nil parent
	case *to != 0:
		newParent = to
	default:
		return fmt.Errorf("one of -to or -to-root is required")
	}

	if err := export.Move(*node, newParent); err != nil {
		return err
	}

	dest := *out
	if dest == "" {
		dest = *in
	}
	if err := export.Save(dest); err != nil {
		return err
	}
	fmt.Printf("moved node %d, wrote %s\n", *node, dest)
	return nil
}
