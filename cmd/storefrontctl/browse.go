package main

import (
	"fmt"
	"strings"

	"storefront/internal/catalog"
	"storefront/internal/storefront"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse [search]",
	Short: "List catalog products",
	Long: "List one page of the catalog. Facets combine with AND, values inside a facet with OR.\n" +
		"--url accepts a storefront query string and overrides the other filter flags.",
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

var productCmd = &cobra.Command{
	Use:   "product [id]",
	Short: "Show a product with its versions and reviews",
	Args:  cobra.ExactArgs(1),
	RunE:  runProduct,
}

func init() {
	browseCmd.Flags().StringSlice("platform", nil, "Platforms, e.g. WordPress,XenForo")
	browseCmd.Flags().StringSlice("category", nil, "Categories")
	browseCmd.Flags().StringSlice("tags", nil, "Tags")
	browseCmd.Flags().String("price", "", "Price range min-max, e.g. 0-50")
	browseCmd.Flags().String("sort", string(catalog.DefaultSort), "Sort: popularity, newest, price-asc, price-desc")
	browseCmd.Flags().Int("page", 1, "Page number")
	browseCmd.Flags().Int("page-size", catalog.DefaultPageSize, "Products per page")
	browseCmd.Flags().String("url", "", "Storefront query string to restore")
	browseCmd.Flags().String("view", string(storefront.ViewGrid), "Layout: grid, list")
	rootCmd.AddCommand(browseCmd, productCmd)
}

func catalogCodec() catalog.Codec {
	if cfg == nil || cfg.Catalog.PriceCeiling.IsZero() {
		return catalog.NewCodec(catalog.DefaultPriceCeiling)
	}
	return catalog.NewCodec(cfg.Catalog.PriceCeiling)
}

// queryFromFlags builds the catalog query from the browse flags.
func queryFromFlags(cmd *cobra.Command, args []string) (catalog.Query, error) {
	platforms, _ := cmd.Flags().GetStringSlice("platform")
	categories, _ := cmd.Flags().GetStringSlice("category")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	price, _ := cmd.Flags().GetString("price")
	sortName, _ := cmd.Flags().GetString("sort")
	page, _ := cmd.Flags().GetInt("page")

	sort, ok := catalog.ParseSort(sortName)
	if !ok {
		return catalog.Query{}, fmt.Errorf("unknown sort %q", sortName)
	}

	f := catalog.Filter{}.WithPlatform(platforms...).WithCategory(categories...).WithTags(tags...)
	if price != "" {
		lo, hi, found := strings.Cut(price, "-")
		min, errMin := decimal.NewFromString(strings.TrimSpace(lo))
		max, errMax := decimal.NewFromString(strings.TrimSpace(hi))
		if !found || errMin != nil || errMax != nil {
			return catalog.Query{}, fmt.Errorf("price must look like min-max, got %q", price)
		}
		f = f.WithPriceRange(min, max)
	}

	q := catalog.Query{Filter: f, Sort: sort, Page: page}
	if len(args) == 1 {
		q.Search = args[0]
	}
	return q, nil
}

func runBrowse(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	pageSize, _ := cmd.Flags().GetInt("page-size")
	raw, _ := cmd.Flags().GetString("url")
	view, _ := cmd.Flags().GetString("view")

	ctrl := storefront.NewController(c, c.Codec(), storefront.ControllerOptions{PageSize: pageSize})
	if storefront.ViewMode(view) == storefront.ViewList {
		ctrl.ToggleViewMode()
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	var snap storefront.Snapshot
	if raw != "" {
		snap, err = ctrl.Navigate(ctx, raw)
	} else {
		q, qerr := queryFromFlags(cmd, args)
		if qerr != nil {
			return qerr
		}
		snap, err = ctrl.Apply(ctx, q)
	}
	if err != nil {
		return err
	}

	if format(cmd) == "json" {
		return printJSON(map[string]any{
			"state":      snap.State.String(),
			"query":      ctrl.URL(),
			"items":      snap.Result.Items,
			"total":      snap.Result.Total,
			"page":       snap.Result.Page,
			"page_count": snap.Result.PageCount(),
		})
	}
	printCatalog(snap, ctrl.URL())
	return nil
}

func runProduct(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	detail, err := c.Product(ctx, args[0])
	if err != nil {
		return err
	}
	if format(cmd) == "json" {
		return printJSON(detail)
	}
	printProduct(detail)
	return nil
}
