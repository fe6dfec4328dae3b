package product

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/ValentinKolb/kstore/cmd/util"
	"github.com/ValentinKolb/kstore/lib/codec"
	"github.com/ValentinKolb/kstore/lib/collections"
	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/ValentinKolb/kstore/lib/storage/engines"
	libutil "github.com/ValentinKolb/kstore/lib/util"
	"github.com/spf13/cobra"
)

var (
	lsCmd = &cobra.Command{
		Use:   "ls",
		Short: "Lists the products in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := engines.NewBackend(config.Backend, config.DataDir)
			if err != nil {
				return err
			}
			names, err := backend.Products()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Printf("no %s products in %s\n", config.Backend, config.DataDir)
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info [product]",
		Short: "Shows the datasets of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openExisting(args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			infos, err := p.Datasets()
			if err != nil {
				return err
			}
			info := p.Info()

			if format, _ := cmd.Flags().GetString("format"); format == "json" {
				return json.NewEncoder(os.Stdout).Encode(struct {
					storage.Info
					Datasets []storage.DatasetInfo `json:"datasets"`
				}{info, infos})
			}

			fmt.Printf("product:  %s (%s)\n", info.Product, info.Kind)
			fmt.Printf("location: %s\n", info.Location)
			fmt.Printf("size:     %s\n\n", libutil.FormatBytes(uint64(info.SizeBytes)))

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATASET\tCODEC\tRECORD SIZE\tCOUNT")
			for _, ds := range infos {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", ds.ID, ds.Codec, ds.RecordSize, ds.Count)
			}
			return w.Flush()
		},
	}
	catCmd = &cobra.Command{
		Use:   "cat [product] [collection] [index]",
		Short: "Prints the items of a uint64 collection or partition member",
		Long:  "Prints the items of a collection. If index is given, the collection is a partition and the items of its member at that index are printed.",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openExisting(args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			it, err := openItems(p, args[1:])
			if err != nil {
				return err
			}
			defer it.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			format, _ := cmd.Flags().GetString("format")
			enc := json.NewEncoder(os.Stdout)

			n := 0
			for item := range collections.All(it) {
				if limit > 0 && n >= limit {
					break
				}
				if format == "json" {
					if err := enc.Encode(item); err != nil {
						return err
					}
				} else {
					fmt.Println(item)
				}
				n++
			}
			return it.Err()
		},
	}
	rmCmd = &cobra.Command{
		Use:   "rm [product]",
		Short: "Removes a product and all of its collections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := engines.NewBackend(config.Backend, config.DataDir)
			if err != nil {
				return err
			}
			if err := backend.RemoveProduct(args[0]); err != nil {
				return err
			}
			fmt.Println("removed successfully")
			return nil
		},
	}
)

// openExisting opens a product and fails if it is not stored yet
func openExisting(name string) (*collections.Product, error) {
	backend, err := engines.NewBackend(config.Backend, config.DataDir)
	if err != nil {
		return nil, err
	}
	names, err := backend.Products()
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if n == name {
			return util.OpenProduct(config, name, false)
		}
	}
	return nil, fmt.Errorf("no %s product %s in %s", config.Backend, name, config.DataDir)
}

// openItems returns an iterator over a collection, or a partition member if args has an index
func openItems(p *collections.Product, args []string) (collections.Iterator[uint64], error) {
	if len(args) == 1 {
		// GetCollection would create a missing collection
		if err := collectionExists(p, args[0]); err != nil {
			return nil, err
		}
		col, err := collections.GetCollection(p, args[0], codec.Uint64())
		if err != nil {
			return nil, err
		}
		return col.Iterator(), nil
	}

	index, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("index must be a number: %w", err)
	}

	arity, err := partitionArity(p, args[0])
	if err != nil {
		return nil, err
	}
	part, err := collections.GetPartition(p, args[0], arity, codec.Uint64())
	if err != nil {
		return nil, err
	}
	member, err := part.Index(index)
	if err != nil {
		return nil, err
	}
	return member.Iterator(), nil
}

// collectionExists fails if the product stores no plain collection of that name
func collectionExists(p *collections.Product, name string) error {
	infos, err := p.Datasets()
	if err != nil {
		return err
	}
	for _, info := range infos {
		if !info.ID.IsMember() && info.ID.Name == name {
			return nil
		}
	}
	if _, ok := p.Info().Partitions[name]; ok {
		return fmt.Errorf("%s is a partition of product %s, pass a member index", name, p.Name())
	}
	return fmt.Errorf("product %s has no collection %s", p.Name(), name)
}

// partitionArity reads the number of members of a stored partition
func partitionArity(p *collections.Product, name string) (int, error) {
	arity, ok := p.Info().Partitions[name]
	if !ok {
		return 0, fmt.Errorf("product %s has no partition %s", p.Name(), name)
	}
	return arity, nil
}
