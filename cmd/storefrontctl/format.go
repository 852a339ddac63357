package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/storefront"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func format(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("format")
	return f
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatPrice(d decimal.Decimal) string {
	if d.IsZero() {
		return "Free"
	}
	return "$" + d.StringFixed(2)
}

// printCatalog renders a catalog page in the snapshot's view mode.
func printCatalog(snap storefront.Snapshot, query string) {
	if query != "" {
		fmt.Fprintf(os.Stdout, "?%s\n", query)
	}
	if snap.State == storefront.StateEmpty {
		fmt.Fprintln(os.Stdout, "No products match these filters.")
		return
	}

	res := snap.Result
	if snap.ViewMode == storefront.ViewList {
		for i, p := range res.Items {
			if i > 0 {
				fmt.Fprintln(os.Stdout)
			}
			fmt.Fprintf(os.Stdout, " %d. %s  %s\n", i+1, p.Title, formatPrice(p.Price))
			fmt.Fprintf(os.Stdout, "    %s / %s  by %s  (%d downloads)\n", p.Platform, p.Category, p.Author, p.DownloadCount)
			if p.Summary != "" {
				fmt.Fprintf(os.Stdout, "    %s\n", p.Summary)
			}
			if len(p.Tags) > 0 {
				fmt.Fprintf(os.Stdout, "    [%s]\n", strings.Join(p.Tags, "] ["))
			}
			fmt.Fprintf(os.Stdout, "    id: %s\n", p.ID)
		}
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tPLATFORM\tCATEGORY\tPRICE\tRATING")
		for _, p := range res.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f\n", p.ID, p.Title, p.Platform, p.Category, formatPrice(p.Price), p.Rating)
		}
		w.Flush()
	}
	fmt.Fprintf(os.Stdout, "\nPage %d of %d (%d products)\n", res.Page, res.PageCount(), res.Total)
}

func printProduct(d *service.ProductDetail) {
	p := d.Product
	fmt.Fprintf(os.Stdout, "%s  %s\n", p.Title, formatPrice(p.Price))
	fmt.Fprintf(os.Stdout, "%s / %s  by %s\n", p.Platform, p.Category, p.Author)
	if d.Latest != nil {
		fmt.Fprintf(os.Stdout, "Latest version: %s (%s)\n", d.Latest.Version, d.Latest.Date.Format("2006-01-02"))
	}
	if p.Description != "" {
		fmt.Fprintf(os.Stdout, "\n%s\n", p.Description)
	}
	if len(d.Versions) > 0 {
		fmt.Fprintln(os.Stdout, "\nVersions:")
		for _, v := range d.Versions {
			fmt.Fprintf(os.Stdout, "  %s  %s  id: %s\n", v.Version, v.Date.Format("2006-01-02"), v.ID)
			for _, c := range v.Changes {
				fmt.Fprintf(os.Stdout, "    - %s\n", c)
			}
		}
	}
	if len(d.Reviews) > 0 {
		fmt.Fprintf(os.Stdout, "\nReviews (%.1f average):\n", p.Rating)
		for _, r := range d.Reviews {
			fmt.Fprintf(os.Stdout, "  %s %s: %s\n", strings.Repeat("*", r.Rating), r.Author, r.Content)
		}
	}
}

func printCart(items []models.CartItem, total decimal.Decimal) {
	if len(items) == 0 {
		fmt.Fprintln(os.Stdout, "Your cart is empty.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tTITLE\tQTY\tPRICE\tSUBTOTAL")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", it.ProductID, it.Product.Title, it.Quantity, formatPrice(it.Product.Price), formatPrice(it.Subtotal()))
	}
	fmt.Fprintf(w, "\t\t\tTOTAL\t%s\n", formatPrice(total))
	w.Flush()
}

func printWishlist(items []models.WishlistItem) {
	if len(items) == 0 {
		fmt.Fprintln(os.Stdout, "Your wishlist is empty.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tTITLE\tPRICE")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\n", it.ProductID, it.Product.Title, formatPrice(it.Product.Price))
	}
	w.Flush()
}

func printCheckout(res *service.CheckoutResult) {
	o := res.Order
	if res.Replayed {
		fmt.Fprintln(os.Stdout, "This checkout was already completed:")
	}
	fmt.Fprintf(os.Stdout, "Order %s  %s  %s\n", o.ID, o.Status, formatPrice(o.Total))
	for _, it := range o.Items {
		fmt.Fprintf(os.Stdout, "  %d x %s @ %s\n", it.Quantity, it.Title, formatPrice(it.Price))
	}
	if res.Receipt.RedirectURL != "" {
		fmt.Fprintf(os.Stdout, "Complete payment at: %s\n", res.Receipt.RedirectURL)
	}
}

func printOrders(orders []models.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(os.Stdout, "No orders yet.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tDATE\tSTATUS\tMETHOD\tTOTAL")
	for _, o := range orders {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.ID, o.CreatedAt.Format("2006-01-02 15:04"), o.Status, o.PaymentMethod, formatPrice(o.Total))
	}
	w.Flush()
}
