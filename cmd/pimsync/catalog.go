package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BadgerOps/pimsync/internal/catalog"
	"github.com/spf13/cobra"
)

var (
	catalogID        int
	catalogNodeID    int
	catalogCode      string
	catalogLinkType  string
	catalogLinkID    int
	catalogName      string
	catalogEvent     string
	catalogResources bool
	catalogData      string
	catalogPath      string
)

func newImportCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-catalog",
		Short: "Submit a catalog import and wait for it to finish",
		Long: `Ask the remote importer to import a catalog file that is already reachable
from the commerce host, then poll until the importer reports completion.`,
		Example: `  pimsync import-catalog --path 'C:\imports\catalog_20260301.zip'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newCatalogService()
			if err != nil {
				return err
			}
			if !svc.ImportCatalog(cmd.Context(), catalogPath) {
				return fmt.Errorf("catalog import of %s failed", catalogPath)
			}
			printDone("catalog import completed")
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "path", "", "catalog file path as seen by the remote importer (required)")
	cmd.MarkFlagRequired("path")

	return cmd
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Run single catalog operations against the import endpoint",
		Long: `Run one catalog-mutating operation. Every operation goes through the
shared gateway lock, so it never overlaps with a running import.`,
		Example: `  pimsync catalog delete --catalog-id 42
  pimsync catalog delete-node --node-id 7 --catalog-id 42
  pimsync catalog associations --link-type ProductItem --link-entity-id 9`,
	}

	cmd.AddCommand(
		catalogOpCmd("delete", "Delete a catalog", func(cmd *cobra.Command, svc *catalog.Service) (bool, error) {
			return svc.DeleteCatalog(cmd.Context(), catalogID), nil
		}, func(c *cobra.Command) {
			c.Flags().IntVar(&catalogID, "catalog-id", 0, "catalog id (required)")
			c.MarkFlagRequired("catalog-id")
		}),
		catalogOpCmd("delete-node", "Delete a catalog node", func(cmd *cobra.Command, svc *catalog.Service) (bool, error) {
			return svc.DeleteCatalogNode(cmd.Context(), catalogNodeID, catalogID), nil
		}, func(c *cobra.Command) {
			c.Flags().IntVar(&catalogNodeID, "node-id", 0, "catalog node id (required)")
			c.Flags().IntVar(&catalogID, "catalog-id", 0, "catalog id (required)")
			c.MarkFlagRequired("node-id")
			c.MarkFlagRequired("catalog-id")
		}),
		catalogOpCmd("delete-entry", "Delete a catalog entry by code", func(cmd *cobra.Command, svc *catalog.Service) (bool, error) {
			return svc.DeleteCatalogEntry(cmd.Context(), catalogCode), nil
		}, requireCode),
		catalogOpCmd("move-node", "Move a catalog node if its parent changed", func(cmd *cobra.Command, svc *catalog.Service) (bool, error) {
			return svc.CheckAndMoveNodeIfNeeded(cmd.Context(), catalogCode), nil
		}, requireCode),
		catalogOpCmd("update-link-entity", "Update link entity data from a JSON document", func(cmd *cobra.Command, svc *catalog.Service) (bool, error) {
			var update catalog.LinkEntityUpdate
			if err := decodeData(&update); err != nil {
				return false, err
			}
			return svc.UpdateLinkEntityData(cmd.Context(), update), nil
		}, requireData),
		catalogOpCmd("update-relations", "Update entry relations from a JSON document", func(cmd *cobra.Command, svc *catalog.Service) (bool, error) {
			var update catalog.RelationUpdate
			if err := decodeData(&update); err != nil {
				return false, err
			}
			return svc.UpdateEntryRelations(cmd.Context(), update), nil
		}, requireData),
		catalogOpCmd("import-completed", "Notify that a catalog publish finished", func(cmd *cobra.Command, svc *catalog.Service) (bool, error) {
			return svc.ImportUpdateCompleted(cmd.Context(), catalog.ImportCompleted{
				CatalogName:       catalogName,
				EventType:         catalogEvent,
				ResourcesIncluded: catalogResources,
			}), nil
		}, func(c *cobra.Command) {
			notificationFlags(c)
			c.Flags().BoolVar(&catalogResources, "resources-included", false, "the publish included resources")
		}),
		catalogOpCmd("delete-completed", "Notify that a catalog delete finished", func(cmd *cobra.Command, svc *catalog.Service) (bool, error) {
			return svc.DeleteCompleted(cmd.Context(), catalog.DeleteCompleted{
				CatalogName: catalogName,
				EventType:   catalogEvent,
			}), nil
		}, notificationFlags),
		newCatalogAssociationsCmd(),
	)

	return cmd
}

// catalogOpCmd builds a subcommand for an operation that reports success as a bool.
func catalogOpCmd(use, short string, run func(*cobra.Command, *catalog.Service) (bool, error), flags func(*cobra.Command)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newCatalogService()
			if err != nil {
				return err
			}
			ok, err := run(cmd, svc)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("catalog %s failed, see log for details", use)
			}
			printDone("catalog " + use + " succeeded")
			return nil
		},
	}
	if flags != nil {
		flags(cmd)
	}
	return cmd
}

func newCatalogAssociationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "associations",
		Short: "List entry codes associated with a link entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newCatalogService()
			if err != nil {
				return err
			}
			codes := svc.GetLinkEntityAssociations(cmd.Context(), catalogLinkType, catalogLinkID)
			if len(codes) == 0 {
				fmt.Println("No associations found")
				return nil
			}
			fmt.Println(strings.Join(codes, "\n"))
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogLinkType, "link-type", "", "link type id (required)")
	cmd.Flags().IntVar(&catalogLinkID, "link-entity-id", 0, "link entity id (required)")
	cmd.MarkFlagRequired("link-type")
	cmd.MarkFlagRequired("link-entity-id")

	return cmd
}

func requireCode(c *cobra.Command) {
	c.Flags().StringVar(&catalogCode, "code", "", "entry or node code (required)")
	c.MarkFlagRequired("code")
}

func requireData(c *cobra.Command) {
	c.Flags().StringVar(&catalogData, "data", "", "JSON request document (required)")
	c.MarkFlagRequired("data")
}

func notificationFlags(c *cobra.Command) {
	c.Flags().StringVar(&catalogName, "catalog", "", "catalog name (required)")
	c.Flags().StringVar(&catalogEvent, "event", "", "event type")
	c.MarkFlagRequired("catalog")
}

func decodeData(v any) error {
	dec := json.NewDecoder(strings.NewReader(catalogData))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid --data document: %w", err)
	}
	return nil
}

func printDone(msg string) {
	if !quiet {
		fmt.Println(msg)
	}
}
