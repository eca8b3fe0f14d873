package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kisielk/pickle"
	"github.com/kisielk/pickle/internal/persist"
	"github.com/kisielk/pickle/internal/render"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the store of persistently referenced pickles",
}

var storePutCmd = &cobra.Command{
	Use:   "put <oid> [file|-]",
	Short: "Store a pickle under oid",
	Long: `Put reads a pickle from file, or standard input, checks that it decodes
and stores it under oid. Persistent references inside it are not resolved.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runStorePut,
}

var storeGetCmd = &cobra.Command{
	Use:   "get <oid>",
	Short: "Decode and print the pickle stored under oid",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreGet,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored oids",
	Args:  cobra.NoArgs,
	RunE:  runStoreList,
}

func init() {
	storeCmd.AddCommand(storePutCmd)
	storeCmd.AddCommand(storeGetCmd)
	storeCmd.AddCommand(storeListCmd)
}

func openStore() (*persist.Store, error) {
	if settings.Store == "" {
		return nil, fmt.Errorf("no store configured (use --store or PICKLEDUMP_STORE)")
	}
	return persist.Open(settings.Store)
}

func runStorePut(cmd *cobra.Command, args []string) error {
	oid := args[0]
	name := "-"
	if len(args) == 2 {
		name = args[1]
	}
	data, err := readInput(cmd.InOrStdin(), name)
	if err != nil {
		return err
	}

	r, err := registry()
	if err != nil {
		return err
	}
	cfg := &pickle.DecoderConfig{
		Registry:       r,
		Logger:         log,
		PersistentLoad: func(pickle.Ref) (any, error) { return nil, nil },
	}
	if _, err := pickle.UnpickleWithConfig(data, cfg); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Put(cmd.Context(), oid, data)
}

func runStoreGet(cmd *cobra.Command, args []string) error {
	out, err := render.Lookup(settings.Format)
	if err != nil {
		return err
	}
	cfg, closeStore, err := decoderConfig(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	obj, err := cfg.PersistentLoad(pickle.Ref{Pid: args[0]})
	if err != nil {
		return err
	}
	return out(cmd.OutOrStdout(), obj)
}

func runStoreList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	oids, err := s.List(cmd.Context())
	if err != nil {
		return err
	}
	for _, oid := range oids {
		fmt.Fprintf(cmd.OutOrStdout(), "%q\n", oid)
	}
	return nil
}
