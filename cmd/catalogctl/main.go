package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/org/servercatalog/internal/auth"
)

var rootCmd = &cobra.Command{
	Use:   "catalogctl",
	Short: "Server catalog CLI",
	Long:  "A CLI for browsing and managing the server catalog API.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(productsCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(anomaliesCmd())
	rootCmd.AddCommand(tokenCmd())
}

// run executes one API call and prints its result. API errors are printed,
// not returned, so cobra does not repeat the usage text.
func run(call func(c *Client) (any, error)) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	result, err := call(c)
	if err != nil {
		printError(err.Error())
		return nil
	}
	printResult(result)
	return nil
}

// --- login ---

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain a credential and store it in the CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")
			c, err := newClient()
			if err != nil {
				return err
			}
			result, err := c.post("/login", map[string]any{"username": user, "role": role})
			if err != nil {
				printError(err.Error())
				return nil
			}
			m, _ := result.(map[string]any)
			token, _ := m["token"].(string)
			if token == "" {
				printError("server returned no token")
				return nil
			}
			cfg.Token = token
			if err := saveConfig(); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			printSuccess(fmt.Sprintf("Logged in as %s (%s). Token saved to %s", user, role, configPath()))
			return nil
		},
	}
	cmd.Flags().String("user", "demo-user", "Subject id to log in as")
	cmd.Flags().String("role", "user", "Role: readonly, user or admin")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Token = ""
			if err := saveConfig(); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			printSuccess("Credential removed from " + configPath())
			return nil
		},
	}
}

// --- products ---

// numericFields are sent as JSON numbers; everything else as strings.
var numericFields = map[string]bool{"precio": true, "nucleos": true, "ram": true, "disco": true}

// parseFields turns key=value arguments into a product payload.
func parseFields(args []string) (map[string]any, error) {
	data := map[string]any{}
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid key=value pair: %s", kv)
		}
		if numericFields[k] {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%s must be a number: %s", k, v)
			}
			data[k] = n
			continue
		}
		data[k] = v
	}
	return data, nil
}

func productsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "products", Aliases: []string{"productos"}, Short: "Manage catalog products"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("titulo")
			status, _ := cmd.Flags().GetString("estado")
			q := url.Values{}
			if title != "" {
				q.Set("titulo", title)
			}
			if status != "" {
				q.Set("estado", status)
			}
			path := "/products"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return run(func(c *Client) (any, error) { return c.get(path) })
		},
	}
	listCmd.Flags().String("titulo", "", "Filter by title substring")
	listCmd.Flags().String("estado", "", "Filter by status")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(c *Client) (any, error) { return c.get("/products/" + url.PathEscape(args[0])) })
		},
	}

	createCmd := &cobra.Command{
		Use:   "create key=value [key=value ...]",
		Short: "Create a product",
		Long:  "Create a product. Fields: titulo, descripcion, precio, nucleos, ram, disco, cluster, estado.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseFields(args)
			if err != nil {
				return err
			}
			return run(func(c *Client) (any, error) { return c.post("/products", data) })
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update <id> key=value [key=value ...]",
		Short: "Change fields of a product",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseFields(args[1:])
			if err != nil {
				return err
			}
			return run(func(c *Client) (any, error) { return c.patch("/products/"+url.PathEscape(args[0]), data) })
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(c *Client) (any, error) { return c.delete("/products/" + url.PathEscape(args[0])) })
		},
	}

	cmd.AddCommand(listCmd, getCmd, createCmd, updateCmd, deleteCmd)
	return cmd
}

// --- status / health ---

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the server security status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(c *Client) (any, error) { return c.get("/security-status") })
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(c *Client) (any, error) { return c.get("/health") })
		},
	}
}

// --- webhook ---

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook <url>",
		Short: "Register a webhook for catalog events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, _ := cmd.Flags().GetStringSlice("event")
			secret, _ := cmd.Flags().GetString("secret")
			body := map[string]any{"url": args[0], "events": events}
			if secret != "" {
				body["secret"] = secret
			}
			return run(func(c *Client) (any, error) { return c.post("/webhook", body) })
		},
	}
	cmd.Flags().StringSlice("event", []string{"product.created"}, "Events to subscribe to")
	cmd.Flags().String("secret", "", "Shared secret used to sign deliveries")
	return cmd
}

func anomaliesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Show tracked principal activity (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			path := "/audit/anomalies"
			if user != "" {
				path += "?user=" + url.QueryEscape(user)
			}
			return run(func(c *Client) (any, error) { return c.get(path) })
		},
	}
	cmd.Flags().String("user", "", "Only show this principal")
	return cmd
}

// --- token ---

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Credential utilities"}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a credential offline from the server's master secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			user, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if secret == "" {
				secret = os.Getenv("CATALOG_JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or CATALOG_JWT_SECRET is required")
			}
			issuer, err := auth.NewIssuer(secret, ttl)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(user, role)
			if err != nil {
				return err
			}
			printResult(map[string]any{
				"token":     token,
				"user":      user,
				"role":      role,
				"expiresAt": time.Now().Add(issuer.TTL()).UTC().Format(time.RFC3339),
			})
			return nil
		},
	}
	issueCmd.Flags().String("secret", "", "Master secret (defaults to CATALOG_JWT_SECRET)")
	issueCmd.Flags().String("user", "demo-user", "Subject id")
	issueCmd.Flags().String("role", "user", "Role: readonly, user or admin")
	issueCmd.Flags().Duration("ttl", auth.DefaultTTL, "Credential lifetime")

	cmd.AddCommand(issueCmd)
	return cmd
}
