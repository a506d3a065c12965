// Package gateway validates asynchronous payment gateway callbacks before
// they are allowed to touch the order ledger. The signature scheme follows
// the SSLCommerz IPN format: the gateway names the signed fields in
// verify_key and sends an MD5 digest in verify_sign.
package gateway

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/SumonaSupto/AgriBusket-sub001/internal/ledger"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/models"
)

// Adapter forwards validated gateway outcomes to the ledger. Malformed or
// unverifiable callbacks are rejected with ErrInvalidCallback and never
// reach the ledger.
type Adapter struct {
	ledger        *ledger.Ledger
	storePassword string
}

func NewAdapter(l *ledger.Ledger, storePassword string) *Adapter {
	return &Adapter{ledger: l, storePassword: storePassword}
}

// HandleCallback processes one gateway notification for orderID. expected is
// the outcome implied by the endpoint the gateway posted to; a payload whose
// status contradicts it is rejected.
func (a *Adapter) HandleCallback(ctx context.Context, orderID string, values url.Values, expected models.PaymentOutcome) error {
	tranID := values.Get("tran_id")
	if tranID == "" {
		return fmt.Errorf("callback for order %s has no tran_id: %w", orderID, models.ErrInvalidCallback)
	}

	if err := a.verifySignature(values); err != nil {
		log.Warn().Err(err).Str("orderId", orderID).Str("tranId", tranID).Msg("Rejected unverifiable payment callback")
		return err
	}

	outcome, err := outcomeFromStatus(values.Get("status"))
	if err != nil {
		log.Warn().Err(err).Str("orderId", orderID).Str("tranId", tranID).Msg("Rejected payment callback with unknown status")
		return err
	}
	if outcome != expected {
		return fmt.Errorf("callback status %q does not match endpoint for order %s: %w", values.Get("status"), orderID, models.ErrInvalidCallback)
	}

	return a.ledger.RecordPayment(ctx, orderID, outcome, tranID, values.Encode())
}

func outcomeFromStatus(status string) (models.PaymentOutcome, error) {
	switch strings.ToUpper(status) {
	case "VALID", "VALIDATED":
		return models.PaymentSuccess, nil
	case "FAILED", "CANCELLED", "EXPIRED", "UNATTEMPTED":
		return models.PaymentFailure, nil
	}
	return "", fmt.Errorf("unknown gateway status %q: %w", status, models.ErrInvalidCallback)
}

// verifySignature checks verify_sign against the MD5 of the fields named in
// verify_key plus the hashed store password, sorted by field name and joined
// as k=v pairs. This is the gateway's published scheme.
func (a *Adapter) verifySignature(values url.Values) error {
	verifySign := values.Get("verify_sign")
	verifyKey := values.Get("verify_key")
	if verifySign == "" || verifyKey == "" {
		return fmt.Errorf("callback missing verify_sign or verify_key: %w", models.ErrInvalidCallback)
	}

	if subtle.ConstantTimeCompare([]byte(strings.ToLower(verifySign)), []byte(Sign(values, verifyKey, a.storePassword))) != 1 {
		return fmt.Errorf("callback signature mismatch: %w", models.ErrInvalidCallback)
	}
	return nil
}

// Sign computes the expected verify_sign for the fields named in verifyKey.
// Exported so tests (and the sandbox harness) can build valid payloads.
func Sign(values url.Values, verifyKey, storePassword string) string {
	hashedPass := md5Hex(storePassword)

	fields := strings.Split(verifyKey, ",")
	pairs := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		pairs = append(pairs, f+"="+values.Get(f))
	}
	pairs = append(pairs, "store_passwd="+hashedPass)
	sort.Strings(pairs)

	return md5Hex(strings.Join(pairs, "&"))
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
