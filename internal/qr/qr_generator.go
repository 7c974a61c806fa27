package qr

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"

	"eventgo/internal/models"
)

// CredentialPayload is the self-describing content of a ticket QR code. Basic
// info can be displayed at the gate without a lookup, but the live Purchase
// record is still re-checked at validation time.
type CredentialPayload struct {
	PurchaseID string `json:"purchase_id"`
	Reference  string `json:"reference"`
	EventID    string `json:"event_id"`
	EventTitle string `json:"event_title"`
	TicketName string `json:"ticket_name"`
	Quantity   int    `json:"quantity"`
	UserEmail  string `json:"user_email"`
	IssuedAt   string `json:"issued_at"`
}

type Generator struct {
	size int
}

func NewGenerator() *Generator {
	return &Generator{size: 256}
}

// Issue builds the credential payload and its PNG for a purchase. Issuing is
// idempotent: a purchase that already carries a credential gets it back
// unchanged.
func (g *Generator) Issue(p *models.Purchase, user *models.User, now time.Time) (string, []byte, error) {
	if p.HasCredential() {
		return p.QRCodeData, p.QRCodePNG, nil
	}
	if p.TicketType == nil || p.TicketType.Event == nil {
		return "", nil, fmt.Errorf("purchase %s is missing ticket type or event relation", p.ID)
	}

	payload := CredentialPayload{
		PurchaseID: p.ID,
		Reference:  p.Reference,
		EventID:    p.TicketType.EventID,
		EventTitle: p.TicketType.Event.Title,
		TicketName: p.TicketType.Name,
		Quantity:   p.Quantity,
		UserEmail:  user.Email,
		IssuedAt:   now.UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode credential payload: %w", err)
	}

	png, err := qrcode.Encode(string(data), qrcode.Medium, g.size)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode QR image: %w", err)
	}

	return string(data), png, nil
}

// Parse decodes a raw credential payload scanned at the gate.
func Parse(raw string) (*CredentialPayload, error) {
	var payload CredentialPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedCredential, err)
	}
	if payload.PurchaseID == "" {
		return nil, fmt.Errorf("%w: missing purchase id", models.ErrMalformedCredential)
	}
	return &payload, nil
}
