package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"benchd/internal/config"
	"benchd/internal/evidence"
	"benchd/internal/services"
	"benchd/internal/services/datalog"
	"benchd/internal/services/ipfs"
	"benchd/internal/services/shortlink"
	"benchd/internal/store"
)

// Target names as they appear in publication rows.
const (
	TargetContentStore = "content_store"
	TargetLedger       = "ledger"
	TargetShortLink    = "short_link"
)

// Target delivers one evidence record to one external system.
type Target interface {
	Name() string
	// Publish returns an opaque receipt on success. The publication row
	// carries the attempt history so targets can reconcile before
	// resubmitting.
	Publish(ctx context.Context, rec *store.EvidenceRow, pub *store.Publication) (string, error)
}

// EnabledTargets lists the target names the configuration turns on, in
// delivery order.
func EnabledTargets(cfg *config.Config) []string {
	var targets []string
	if cfg.ContentStore.Enabled {
		targets = append(targets, TargetContentStore)
	}
	if cfg.Ledger.Enabled {
		targets = append(targets, TargetLedger)
	}
	if cfg.ShortLink.Enabled {
		targets = append(targets, TargetShortLink)
	}
	return targets
}

// ContentStoreReceipt is the stored receipt for a content store delivery.
type ContentStoreReceipt struct {
	CID string `json:"cid"`
	URL string `json:"url"`
}

// DecodeContentStoreReceipt parses a stored content store receipt.
func DecodeContentStoreReceipt(raw string) (ContentStoreReceipt, error) {
	var receipt ContentStoreReceipt
	if err := json.Unmarshal([]byte(raw), &receipt); err != nil {
		return ContentStoreReceipt{}, fmt.Errorf("decode content store receipt: %w", err)
	}
	return receipt, nil
}

func decodeRecord(rec *store.EvidenceRow) (*evidence.Record, error) {
	var record evidence.Record
	if err := json.Unmarshal([]byte(rec.Payload), &record); err != nil {
		return nil, fmt.Errorf("decode evidence record %s: %w", rec.ID, err)
	}
	return &record, nil
}

// ContentStoreTarget uploads the unit passport to the content-addressed
// store. Uploads are naturally idempotent: the same document always maps to
// the same address.
type ContentStoreTarget struct {
	client *ipfs.Client
}

func NewContentStoreTarget(client *ipfs.Client) *ContentStoreTarget {
	return &ContentStoreTarget{client: client}
}

func (t *ContentStoreTarget) Name() string { return TargetContentStore }

func (t *ContentStoreTarget) Publish(ctx context.Context, rec *store.EvidenceRow, _ *store.Publication) (string, error) {
	record, err := decodeRecord(rec)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "content_store", "publish", "stored payload unreadable", err)
	}
	passport, err := record.PassportYAML()
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "content_store", "publish", "render passport", err)
	}
	result, err := t.client.Publish(ctx, "unit-passport-"+record.UnitID+".yaml", passport)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(ContentStoreReceipt{CID: result.CID, URL: result.URL})
	if err != nil {
		return "", fmt.Errorf("encode receipt: %w", err)
	}
	return string(raw), nil
}

// LedgerTarget records the evidence content hash in the append-only ledger.
// The ledger has no native idempotency, so a retried row whose earlier
// attempt may have landed is reconciled by hash before resubmitting.
type LedgerTarget struct {
	client *datalog.Client
}

func NewLedgerTarget(client *datalog.Client) *LedgerTarget {
	return &LedgerTarget{client: client}
}

func (t *LedgerTarget) Name() string { return TargetLedger }

func (t *LedgerTarget) Publish(ctx context.Context, rec *store.EvidenceRow, pub *store.Publication) (string, error) {
	if pub != nil && pub.Attempted {
		txID, err := t.client.QueryByPayloadHash(ctx, rec.PayloadHash)
		switch {
		case err == nil:
			return txID, nil
		case errors.Is(err, services.ErrNotFound):
			// Earlier attempt never landed; safe to submit.
		default:
			return "", err
		}
	}
	return t.client.Submit(ctx, rec.PayloadHash)
}

// ShortLinkTarget mints a persistent short link pointing at the passport in
// the content store. It depends on the content store delivery having settled
// for the same record.
type ShortLinkTarget struct {
	client *shortlink.Client
	store  *store.Store
}

func NewShortLinkTarget(client *shortlink.Client, st *store.Store) *ShortLinkTarget {
	return &ShortLinkTarget{client: client, store: st}
}

func (t *ShortLinkTarget) Name() string { return TargetShortLink }

func (t *ShortLinkTarget) Publish(ctx context.Context, rec *store.EvidenceRow, _ *store.Publication) (string, error) {
	upstream, err := t.store.Publication(ctx, rec.ID, TargetContentStore)
	if err != nil {
		return "", err
	}
	if upstream == nil {
		return "", services.Wrap(services.ErrConfiguration, "short_link", "publish",
			"no content store delivery to link to", nil)
	}
	if upstream.Status != store.PubSucceeded {
		return "", services.Wrap(services.ErrTransient, "short_link", "publish",
			"content store delivery not settled yet", nil)
	}
	receipt, err := DecodeContentStoreReceipt(upstream.Receipt)
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "short_link", "publish", "content store receipt unreadable", err)
	}
	return t.client.Upsert(ctx, "unit-"+rec.UnitID, receipt.URL)
}
