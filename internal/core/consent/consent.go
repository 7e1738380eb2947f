// Package consent stores signed consent forms. The form body is a
// tagged variant: the type field selects which payload shape is
// expected, and each type validates its own required fields.
package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medispa/backoffice/internal/web"
)

// Set of errors for consent API.
var (
	ErrNotFound        = errors.New("consent form not found")
	ErrInvalidArgument = errors.New("consent invalid argument")
)

// FormType selects the payload shape of a consent form.
type FormType string

const (
	TypeGeneralTreatment FormType = "GENERAL_TREATMENT"
	TypeBotox            FormType = "BOTOX"
	TypeFiller           FormType = "FILLER"
)

func (t FormType) valid() bool {
	switch t {
	case TypeGeneralTreatment, TypeBotox, TypeFiller:
		return true
	}
	return false
}

// Form is a signed consent form. FormData keeps the type-specific
// answers; it is stored as-is and only shape-checked on the way in.
type Form struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	Type      FormType
	Signature string
	FormData  json.RawMessage
	SignedAt  time.Time
	CreatedAt time.Time
}

// NewForm is the information needed to file a consent form.
type NewForm struct {
	Type      FormType
	Signature string
	FormData  json.RawMessage
}

// Store is used to persist consent forms.
type Store interface {
	Insert(ctx context.Context, f Form) error
	QueryByClient(ctx context.Context, clientID uuid.UUID) ([]Form, error)
}

// Core deals with consent-form business logic.
type Core struct {
	store Store
}

// NewCore constructs a consent core.
func NewCore(store Store) *Core {
	return &Core{store: store}
}

// Create files a signed consent form for the client.
func (c *Core) Create(ctx context.Context, clientID uuid.UUID, nf NewForm) (Form, error) {
	if err := nf.validate(); err != nil {
		return Form{}, err
	}

	now := web.GetTime(ctx)
	f := Form{
		ID:        uuid.New(),
		ClientID:  clientID,
		Type:      nf.Type,
		Signature: nf.Signature,
		FormData:  nf.FormData,
		SignedAt:  now,
		CreatedAt: now,
	}
	if len(f.FormData) == 0 {
		f.FormData = json.RawMessage(`{}`)
	}

	if err := c.store.Insert(ctx, f); err != nil {
		return Form{}, err
	}

	return f, nil
}

// QueryByClient returns the client's consent forms, newest first.
func (c *Core) QueryByClient(ctx context.Context, clientID uuid.UUID) ([]Form, error) {
	return c.store.QueryByClient(ctx, clientID)
}

func (nf NewForm) validate() error {
	switch {
	case !nf.Type.valid():
		return fmt.Errorf("%w: unknown form type %q", ErrInvalidArgument, nf.Type)
	case nf.Signature == "":
		return fmt.Errorf("%w: signature is required", ErrInvalidArgument)
	}

	if len(nf.FormData) > 0 {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(nf.FormData, &payload); err != nil {
			return fmt.Errorf("%w: form data must be a JSON object", ErrInvalidArgument)
		}

		// Injectable types must record the treated areas.
		if nf.Type == TypeBotox || nf.Type == TypeFiller {
			if _, ok := payload["treatmentAreas"]; !ok {
				return fmt.Errorf("%w: %s form data needs treatmentAreas", ErrInvalidArgument, nf.Type)
			}
		}
	}

	return nil
}
