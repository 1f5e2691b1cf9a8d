package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sufield/certifier/internal/adapters/secondary/storage"
	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and edit the sealed policy store",
		Long: `Operate directly on the sealed policy store file named by node.store_path.
The store is unsealed with the node's enclave, so these commands only work on
the node that wrote it.`,
	}
	cmd.AddCommand(newStorePrintCmd(), newStoreFindCmd(), newStoreDeleteCmd(), newStoreInsertCmd())
	return cmd
}

func newStorePrintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "List the store entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, err := openStore(cmd, false)
			if err != nil {
				return err
			}
			store.Print(cmd.OutOrStdout())
			return nil
		},
	}
}

func newStoreFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <tag> <type>",
		Short: "Print the index of the entry with tag and type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore(cmd, false)
			if err != nil {
				return err
			}
			i := store.FindEntry(args[0], args[1])
			if i == domain.NotFound {
				return classify(errors.NewDomainError(errors.ErrEntryNotFound,
					fmt.Errorf("no entry %s/%s", args[0], args[1])))
			}
			fmt.Fprintln(cmd.OutOrStdout(), i)
			return nil
		},
	}
}

func newStoreDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete the entry at index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: invalid index %q", ErrUsage, args[0])
			}
			repo, store, err := openStore(cmd, false)
			if err != nil {
				return err
			}
			if err := store.Delete(index); err != nil {
				return classify(err)
			}
			return saveStore(cmd.Context(), repo, store)
		},
	}
}

func newStoreInsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert <tag> <type> [value]",
		Short: "Insert or replace the entry with tag and type",
		Long: `Insert or replace the entry with tag and type. The value is taken literally,
decoded from hex with --hex, or read from --file.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: runStoreInsert,
	}
	cmd.Flags().Bool("hex", false, "Decode value from hex")
	cmd.Flags().String("file", "", "Read value from file")
	cmd.MarkFlagsMutuallyExclusive("hex", "file")
	return cmd
}

func runStoreInsert(cmd *cobra.Command, args []string) error {
	asHex, _ := cmd.Flags().GetBool("hex")
	file, _ := cmd.Flags().GetString("file")

	var value []byte
	switch {
	case file != "":
		if len(args) == 3 {
			return fmt.Errorf("%w: value and --file are mutually exclusive", ErrUsage)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRuntime, err)
		}
		value = data
	case len(args) < 3:
		return fmt.Errorf("%w: value or --file is required", ErrUsage)
	case asHex:
		data, err := decodeHex(args[2])
		if err != nil {
			return fmt.Errorf("%w: invalid hex value: %v", ErrUsage, err)
		}
		value = data
	default:
		value = []byte(args[2])
	}

	repo, store, err := openStore(cmd, true)
	if err != nil {
		return err
	}
	if err := store.Insert(args[0], args[1], value); err != nil {
		return classify(err)
	}
	return saveStore(cmd.Context(), repo, store)
}

// openStore loads and unseals the store file. When create is set a missing
// file yields an empty store.
func openStore(cmd *cobra.Command, create bool) (*storage.FileRepository, *domain.PolicyStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	encl, err := openEnclave(cfg, false)
	if err != nil {
		return nil, nil, err
	}
	repo, err := storage.NewFileRepository(cfg.Node.StorePath, encl)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	data, err := repo.Load(cmd.Context())
	if err != nil {
		if create && stderrors.Is(err, errors.ErrEntryNotFound) {
			return repo, domain.NewPolicyStore(cfg.Policy.MaxEntries), nil
		}
		return nil, nil, classify(err)
	}
	store, err := domain.DeserializePolicyStore(data)
	if err != nil {
		return nil, nil, classify(err)
	}
	return repo, store, nil
}

func saveStore(ctx context.Context, repo *storage.FileRepository, store *domain.PolicyStore) error {
	data, err := store.Serialize()
	if err != nil {
		return classify(err)
	}
	if err := repo.Save(ctx, data); err != nil {
		return classify(err)
	}
	return nil
}
