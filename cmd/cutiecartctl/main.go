// cutiecartctl is a CLI for driving a CutieCart server by hand or from scripts.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cutiecartctl products [-server URL] [-session ID]
//	cutiecartctl add|inc|dec|remove -product ID
//	cutiecartctl cart
//	cutiecartctl coupon -code CODE
//	cutiecartctl checkout [-name N] [-email E] [-payment P] [-note T] [-date D] [-time T] [-dry-run]
//	cutiecartctl confirm
//
// Examples:
//
//	export CUTIECART_SESSION=$(uuidgen)
//	cutiecartctl add -product kiss-001
//	cutiecartctl coupon -code PRINCESS
//	ORDER=$(cutiecartctl checkout -name Bubu -dry-run -q)
//	cutiecartctl confirm
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	sessionID string
	quiet     bool
	noColor   bool
	verbose   bool
	dryRun    bool
)

// Header names mirror the server's.
const (
	sessionHeader = "CutieCart-Session"
	optionsHeader = "CutieCart-Options"
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorBlue, colorCyan, colorGray, colorBold = "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "products":
		runProducts(args)
	case "add", "inc", "dec", "remove":
		runItem(cmd, args)
	case "cart":
		runCart(args)
	case "coupon":
		runCoupon(args)
	case "checkout":
		runCheckout(args)
	case "confirm":
		runConfirm(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cutiecartctl - CutieCart command line client

Usage:
  cutiecartctl <command> [options]

Commands:
  products  Show the catalogue with cart controls and badge
  add       Add one unit of a product
  inc       Press a product's plus button
  dec       Press a product's minus button (zero removes it)
  remove    Remove a product from the cart
  cart      Show the cart
  coupon    Toggle a coupon code
  checkout  Place the order
  confirm   Show the last order id (readable once)

Every command accepts -server, -session, -q, -v and -no-color.
The session defaults to $CUTIECART_SESSION.

Examples:
  export CUTIECART_SESSION=$(uuidgen)
  cutiecartctl add -product kiss-001
  cutiecartctl coupon -code PRINCESS
  ORDER=$(cutiecartctl checkout -name Bubu -dry-run -q)
  cutiecartctl confirm

Run 'cutiecartctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags shared by every command.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", envOr("CUTIECART_SERVER", "http://localhost:8080"), "CutieCart server base URL")
	fs.StringVar(&sessionID, "session", os.Getenv("CUTIECART_SESSION"), "Shopper session id (UUID)")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cutiecartctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// PRODUCTS COMMAND
// =============================================================================

func runProducts(args []string) {
	fs := newFlagSet("products", "products [options]")
	parse(fs, args)

	resp, err := doRequest("GET", "/products", nil)
	if err != nil {
		fatal("Failed to list products: %v", err)
	}

	qty := make(map[string]float64)
	if controls, ok := resp["controls"].([]interface{}); ok {
		for _, c := range controls {
			if m, ok := c.(map[string]interface{}); ok {
				id, _ := m["product_id"].(string)
				qty[id], _ = m["qty"].(float64)
			}
		}
	}

	products, _ := resp["products"].([]interface{})
	for _, p := range products {
		m, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		if quiet {
			fmt.Printf("%s\t%.0f\n", id, qty[id])
			continue
		}
		control := colorGray + "[add]" + colorReset
		if qty[id] > 0 {
			control = fmt.Sprintf("%s[- %.0f +]%s", colorGreen, qty[id], colorReset)
		}
		fmt.Printf("  %s%-14s%s %-32v %v  %s\n", colorCyan, id, colorReset, m["title"], m["price"], control)
	}
	if !quiet {
		fmt.Printf("  Badge: %s%v%s\n", colorBold, resp["badge"], colorReset)
	}
}

// =============================================================================
// ITEM COMMANDS
// =============================================================================

func runItem(cmd string, args []string) {
	fs := newFlagSet(cmd, cmd+" -product ID [options]")
	var productID string
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	parse(fs, args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	var (
		resp map[string]interface{}
		err  error
	)
	escaped := url.PathEscape(productID)
	switch cmd {
	case "add":
		resp, err = doRequest("POST", "/cart/items", map[string]string{"id": productID})
	case "inc":
		resp, err = doRequest("POST", "/cart/items/"+escaped+"/increment", nil)
	case "dec":
		resp, err = doRequest("POST", "/cart/items/"+escaped+"/decrement", nil)
	case "remove":
		resp, err = doRequest("DELETE", "/cart/items/"+escaped, nil)
	}
	if err != nil {
		fatal("Failed to %s %s: %v", cmd, productID, err)
	}

	control, _ := resp["control"].(map[string]interface{})
	qty, _ := control["qty"].(float64)
	if quiet {
		fmt.Printf("%.0f\n", qty)
		return
	}
	printSuccess("%s now x%.0f", productID, qty)
	fmt.Printf("  Badge: %s%v%s\n", colorBold, resp["badge"], colorReset)
}

// =============================================================================
// CART COMMAND
// =============================================================================

func runCart(args []string) {
	fs := newFlagSet("cart", "cart [options]")
	parse(fs, args)

	resp, err := doRequest("GET", "/cart", nil)
	if err != nil {
		fatal("Failed to get cart: %v", err)
	}

	if quiet {
		fmt.Println(resp["count"])
		return
	}
	printCart(resp)
}

func printCart(cart map[string]interface{}) {
	items, _ := cart["items"].([]interface{})
	if len(items) == 0 {
		printInfo("Cart is empty")
		return
	}
	for _, it := range items {
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("  %s%-14v%s %v x %v\n", colorCyan, m["id"], colorReset, m["title"], m["qty"])
	}
	fmt.Printf("  Items: %v  Total: %s%v%s\n", cart["count"], colorGreen, cart["total"], colorReset)
}

// =============================================================================
// COUPON COMMAND
// =============================================================================

func runCoupon(args []string) {
	fs := newFlagSet("coupon", "coupon -code CODE [options]")
	var code string
	fs.StringVar(&code, "code", "", "Coupon code, case-sensitive (required)")
	parse(fs, args)

	if code == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("POST", "/checkout/coupons/"+url.PathEscape(code)+"/toggle", nil)
	if err != nil {
		fatal("Failed to toggle coupon: %v", err)
	}

	status, _ := resp["coupon_status"].(string)
	if quiet {
		fmt.Println(status)
		return
	}
	if changed, _ := resp["changed"].(bool); !changed {
		printWarning("%s is not a togglable coupon", code)
	}
	printSuccess("%s", status)
	if locked, _ := resp["payment_locked"].(bool); locked {
		printInfo("Payment not needed while a coupon is applied")
	}
}

// =============================================================================
// CHECKOUT COMMAND
// =============================================================================

func runCheckout(args []string) {
	fs := newFlagSet("checkout", "checkout [options]")
	var name, email, payment, note, date, clock string
	fs.StringVar(&name, "name", "", "Buyer name")
	fs.StringVar(&email, "email", "", "Buyer email")
	fs.StringVar(&payment, "payment", "time-with-me", "Payment option value")
	fs.StringVar(&note, "note", "", "Note for the order")
	fs.StringVar(&date, "date", "", "Delivery date YYYY-MM-DD (default today)")
	fs.StringVar(&clock, "time", "", "Delivery time HH:MM (default next hour)")
	fs.BoolVar(&dryRun, "dry-run", false, "Simulate the order email")
	parse(fs, args)

	reqBody := map[string]interface{}{
		"buyer_name":     name,
		"buyer_email":    email,
		"payment_choice": payment,
		"note":           note,
		"delivery":       map[string]string{"date": date, "time": clock},
	}

	resp, err := doRequest("POST", "/checkout", reqBody)
	if err != nil {
		fatal("Failed to place order: %v", err)
	}

	order, _ := resp["order"].(map[string]interface{})
	orderID, _ := order["order_id"].(string)
	if quiet {
		fmt.Println(orderID)
		return
	}

	warning, _ := resp["warning"].(bool)
	if messages, ok := resp["messages"].([]interface{}); ok {
		for i, m := range messages {
			text, _ := m.(string)
			if i == 0 && warning {
				printWarning("%s", text)
				continue
			}
			printSuccess("%s", text)
		}
	}
	fmt.Printf("  Order ID: %s%s%s\n", colorGreen, orderID, colorReset)
	fmt.Printf("  Summary: %v\n", resp["summary"])
	fmt.Printf("  Payment: %v\n", order["payment_label"])
	if d, ok := order["delivery"].(map[string]interface{}); ok {
		fmt.Printf("  Delivery: %v %v\n", d["date"], d["time"])
	}
	fmt.Printf("  Next: %s%v%s\n", colorBlue, resp["redirect"], colorReset)
}

// =============================================================================
// CONFIRM COMMAND
// =============================================================================

func runConfirm(args []string) {
	fs := newFlagSet("confirm", "confirm [options]")
	parse(fs, args)

	resp, err := doRequest("GET", "/confirmation", nil)
	if err != nil {
		fatal("Failed to read confirmation: %v", err)
	}

	orderID, _ := resp["order_id"].(string)
	if quiet {
		fmt.Println(orderID)
		return
	}
	printSuccess("Order confirmed 💗")
	fmt.Printf("  Order ID: %s%s%s\n", colorGreen, orderID, colorReset)
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	reqURL := strings.TrimRight(serverURL, "/") + path
	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	if dryRun {
		opts, err := encodeOptions(true)
		if err != nil {
			return nil, err
		}
		req.Header.Set(optionsHeader, opts)
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	// A session issued by the server is only useful if the caller can reuse it.
	if sessionID == "" && !quiet {
		if issued := resp.Header.Get(sessionHeader); issued != "" {
			printInfo("New session %s (export CUTIECART_SESSION=%s to keep it)", issued, issued)
		}
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorMessage(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return result, nil
}

// encodeOptions encodes the CutieCart-Options dictionary.
func encodeOptions(dry bool) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("dry-run", httpsfv.NewItem(dry))
	v, err := httpsfv.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", optionsHeader, err)
	}
	return v, nil
}

// errorMessage pulls the message out of the error envelope, or returns the raw body.
func errorMessage(body []byte) string {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		return string(body)
	}
	return env.Error.Code + ": " + env.Error.Message
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printRequest(method, path string, body []byte) {
	if !verbose {
		return
	}
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	if !verbose {
		return
	}
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
