package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
)

// Builds a correctly signed provider webhook and posts it at a local
// server, so the full verify/dedupe/apply path can be exercised without
// real gateway traffic.
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Server base URL")
	provider := flag.String("provider", "cryptomus", "Provider (cryptomus, montypay, stripe)")
	secret := flag.String("secret", os.Getenv("MOCK_WEBHOOK_SECRET"), "Provider webhook secret / API key")
	paymentID := flag.String("payment-id", "pay_"+randomHex(8), "Payment public ID")
	status := flag.String("status", "", "Gateway status (default: provider's success status)")
	amount := flag.String("amount", "20.00", "Amount")
	currency := flag.String("currency", "EUR", "Currency")
	dryRun := flag.Bool("dry-run", false, "Print body and headers without sending")

	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: secret not provided and MOCK_WEBHOOK_SECRET not set")
		os.Exit(1)
	}

	var (
		body        []byte
		contentType string
		headers     map[string]string
		err         error
	)

	switch *provider {
	case "cryptomus":
		body, err = cryptomusBody(*paymentID, orDefault(*status, "paid"), *amount, *currency, *secret)
		contentType = "application/json"
	case "montypay":
		body = montypayBody(*paymentID, orDefault(*status, "settled"), *amount, *currency, *secret)
		contentType = "application/x-www-form-urlencoded"
	case "stripe":
		body, headers, err = stripeBody(*paymentID, orDefault(*status, "paid"), *amount, *currency, *secret)
		contentType = "application/json"
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown provider %q\n", *provider)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building payload: %v\n", err)
		os.Exit(1)
	}

	target := strings.TrimRight(*baseURL, "/") + "/webhooks/" + *provider

	if *dryRun {
		fmt.Printf("POST %s\nContent-Type: %s\n", target, contentType)
		for k, v := range headers {
			fmt.Printf("%s: %s\n", k, v)
		}
		fmt.Printf("\n%s\n", body)
		return
	}

	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error sending webhook: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s\n%s\n", resp.Status, respBody)
}

func cryptomusBody(paymentID, status, amount, currency, apiKey string) ([]byte, error) {
	payload := map[string]any{
		"uuid":           "mock-" + randomHex(6),
		"order_id":       paymentID,
		"amount":         amount,
		"payment_amount": amount,
		"currency":       currency,
		"payment_status": status,
		"is_final":       status != "check" && status != "process",
		"txid":           "0x" + randomHex(16),
	}
	unsigned, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(unsigned)
	sum := md5.Sum([]byte(encoded + apiKey))
	payload["sign"] = hex.EncodeToString(sum[:])
	return json.Marshal(payload)
}

func montypayBody(paymentID, status, amount, currency, secret string) []byte {
	fields := map[string]string{
		"payment_id":   "mp-" + randomHex(6),
		"order_number": paymentID,
		"status":       status,
		"amount":       amount,
		"currency":     currency,
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "&")))
	sig := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set("merchantSignature", sig)
	return []byte(form.Encode())
}

func stripeBody(paymentID, paymentStatus, amount, currency, webhookSecret string) ([]byte, map[string]string, error) {
	cents := strings.ReplaceAll(amount, ".", "")
	event := fmt.Sprintf(`{
  "id": "evt_%s",
  "object": "event",
  "api_version": %q,
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_test_%s",
      "object": "checkout.session",
      "client_reference_id": %q,
      "payment_intent": "pi_%s",
      "payment_status": %q,
      "amount_total": %s,
      "currency": %q
    }
  }
}`, randomHex(8), stripe.APIVersion, randomHex(8), paymentID, randomHex(8), paymentStatus, cents, strings.ToLower(currency))

	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(ts + "." + event))
	sig := hex.EncodeToString(mac.Sum(nil))

	headers := map[string]string{
		"Stripe-Signature": fmt.Sprintf("t=%s,v1=%s", ts, sig),
	}
	return []byte(event), headers, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func randomHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
