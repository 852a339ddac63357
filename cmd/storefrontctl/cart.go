package main

import (
	"fmt"
	"strconv"

	"storefront/internal/client"
	"storefront/internal/models"
	"storefront/internal/storefront"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Show or change your cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCart(cmd, func(cart *storefront.CartStore) error {
			return nil
		})
	},
}

var cartAddCmd = &cobra.Command{
	Use:   "add [product-id] [quantity]",
	Short: "Add a product to the cart",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		quantity := 1
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be a number, got %q", args[1])
			}
			quantity = n
		}
		return withCart(cmd, func(cart *storefront.CartStore) error {
			_, err := cart.Add(cmd.Context(), models.Product{ID: args[0]}, quantity)
			return err
		})
	},
}

var cartSetCmd = &cobra.Command{
	Use:   "set [product-id] [quantity]",
	Short: "Set a line's quantity; 0 removes it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("quantity must be a number, got %q", args[1])
		}
		return withCart(cmd, func(cart *storefront.CartStore) error {
			_, err := cart.Update(cmd.Context(), args[0], n)
			return err
		})
	},
}

var cartRemoveCmd = &cobra.Command{
	Use:   "remove [product-id]",
	Short: "Remove a line from the cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCart(cmd, func(cart *storefront.CartStore) error {
			return cart.Remove(cmd.Context(), args[0])
		})
	},
}

var wishlistCmd = &cobra.Command{
	Use:   "wishlist",
	Short: "Show or change your wishlist",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWishlist(cmd, func(w *storefront.WishlistStore) error { return nil })
	},
}

var wishlistAddCmd = &cobra.Command{
	Use:   "add [product-id]",
	Short: "Save a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWishlist(cmd, func(w *storefront.WishlistStore) error {
			_, err := w.Add(cmd.Context(), models.Product{ID: args[0]})
			return err
		})
	},
}

var wishlistRemoveCmd = &cobra.Command{
	Use:   "remove [product-id]",
	Short: "Forget a saved product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWishlist(cmd, func(w *storefront.WishlistStore) error {
			return w.Remove(cmd.Context(), args[0])
		})
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Buy everything in the cart",
	RunE:  runCheckout,
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List your orders",
	RunE:  runOrders,
}

var downloadCmd = &cobra.Command{
	Use:   "download [version-id]",
	Short: "Get a download link for a purchased version",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

func init() {
	checkoutCmd.Flags().String("idempotency-key", "", "Key that makes a retried checkout safe (generated when empty)")

	cartCmd.AddCommand(cartAddCmd, cartSetCmd, cartRemoveCmd)
	wishlistCmd.AddCommand(wishlistAddCmd, wishlistRemoveCmd)
	rootCmd.AddCommand(cartCmd, wishlistCmd, checkoutCmd, ordersCmd, downloadCmd)
}

// withCart loads the cart, applies fn, and prints the result.
func withCart(cmd *cobra.Command, fn func(*storefront.CartStore) error) error {
	c, session, err := signedInClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	cmd.SetContext(ctx)

	cart := storefront.NewCartStore(c.Cart(), session)
	if _, err := cart.Load(ctx); err != nil {
		return err
	}
	if err := fn(cart); err != nil {
		return err
	}
	// reload so product details of freshly added lines are shown
	items, err := cart.Load(ctx)
	if err != nil {
		return err
	}
	if format(cmd) == "json" {
		return printJSON(map[string]any{"items": items, "total": cart.Total()})
	}
	printCart(items, cart.Total())
	return nil
}

func withWishlist(cmd *cobra.Command, fn func(*storefront.WishlistStore) error) error {
	c, session, err := signedInClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	cmd.SetContext(ctx)

	w := storefront.NewWishlistStore(c.Wishlist(), session)
	if _, err := w.Load(ctx); err != nil {
		return err
	}
	if err := fn(w); err != nil {
		return err
	}
	items, err := w.Load(ctx)
	if err != nil {
		return err
	}
	if format(cmd) == "json" {
		return printJSON(map[string]any{"items": items})
	}
	printWishlist(items)
	return nil
}

func signedInClient(cmd *cobra.Command) (*client.Client, *storefront.Session, error) {
	c, err := newClient(cmd)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	session, err := signIn(ctx, cmd, c)
	if err != nil {
		return nil, nil, err
	}
	return c, session, nil
}

func runCheckout(cmd *cobra.Command, args []string) error {
	c, session, err := signedInClient(cmd)
	if err != nil {
		return err
	}
	key, _ := cmd.Flags().GetString("idempotency-key")
	if key == "" {
		key = uuid.NewString()
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	user, _ := session.CurrentUser()
	res, err := c.Checkout(ctx, user, key)
	if err != nil {
		return fmt.Errorf("%w (idempotency key %s)", err, key)
	}
	if format(cmd) == "json" {
		return printJSON(res)
	}
	printCheckout(res)
	return nil
}

func runOrders(cmd *cobra.Command, args []string) error {
	c, session, err := signedInClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	user, _ := session.CurrentUser()
	orders, err := c.Orders(ctx, user)
	if err != nil {
		return err
	}
	if format(cmd) == "json" {
		return printJSON(orders)
	}
	printOrders(orders)
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	c, session, err := signedInClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	user, _ := session.CurrentUser()
	link, err := c.Download(ctx, user, args[0])
	if err != nil {
		return err
	}
	if format(cmd) == "json" {
		return printJSON(link)
	}
	fmt.Printf("%s %s (expires %s)\n", link.Version.Version, link.URL, link.ExpiresAt.Local().Format("15:04:05"))
	return nil
}
