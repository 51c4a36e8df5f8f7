package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/walletshop/internal/models"
	"github.com/example/walletshop/internal/store"
)

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidAddress     = errors.New("invalid shipping address")
	ErrUnsupportedCountry = errors.New("country not supported")
	ErrInvalidTransition  = errors.New("invalid checkout step transition")
	ErrNoSession          = errors.New("no active checkout session")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// usCountryAliases are the accepted spellings of the only supported country.
var usCountryAliases = map[string]struct{}{
	"US":            {},
	"USA":           {},
	"U.S.":          {},
	"U.S.A.":        {},
	"UNITED STATES": {},
}

// allowedTransitions lists the forward moves of the session state machine.
// Cancellation is allowed from every non-terminal step and handled separately.
var allowedTransitions = map[models.CheckoutStep][]models.CheckoutStep{
	models.StepProductSelected:   {models.StepCollectingEmail, models.StepCollectingAddress},
	models.StepCollectingEmail:   {models.StepCollectingAddress},
	models.StepCollectingAddress: {models.StepCreatingOrder},
	models.StepCreatingOrder:     {models.StepCompleted},
}

// CanTransition reports whether a session may move from one step to another.
func CanTransition(from, to models.CheckoutStep) bool {
	if to == models.StepCancelled {
		return from != models.StepCompleted && from != models.StepCancelled
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateEmail trims input and checks it has the local@domain.tld shape.
func ValidateEmail(input string) (string, error) {
	email := strings.TrimSpace(input)
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// ParseAddress parses "Name|Line1|City|State|PostalCode|Country".
func ParseAddress(input string) (*models.PhysicalAddress, error) {
	parts := strings.Split(strings.TrimSpace(input), "|")
	if len(parts) != 6 {
		return nil, fmt.Errorf("%w: expected 6 fields separated by |, got %d", ErrInvalidAddress, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	address := &models.PhysicalAddress{
		Name:       parts[0],
		Line1:      parts[1],
		City:       parts[2],
		State:      parts[3],
		PostalCode: parts[4],
		Country:    parts[5],
	}
	if address.Name == "" || address.Line1 == "" || address.City == "" ||
		address.PostalCode == "" || address.Country == "" {
		return nil, fmt.Errorf("%w: name, street, city, postal code and country are required", ErrInvalidAddress)
	}

	country, ok := normalizeCountry(address.Country)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCountry, address.Country)
	}
	address.Country = country

	if address.State == "" {
		return nil, fmt.Errorf("%w: state is required for US addresses", ErrInvalidAddress)
	}
	address.State = strings.ToUpper(address.State)
	return address, nil
}

func normalizeCountry(country string) (string, bool) {
	if _, ok := usCountryAliases[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return "US", true
	}
	return "", false
}

// SessionManager drives the per-user checkout state machine.
type SessionManager struct {
	store store.SessionStore
	now   func() time.Time
}

// NewSessionManager creates a SessionManager on top of s.
func NewSessionManager(s store.SessionStore) *SessionManager {
	return &SessionManager{store: s, now: time.Now}
}

// Start opens a new session for the selected product, replacing any open one.
func (m *SessionManager) Start(ctx context.Context, userID int64, product models.Product, index int) (*models.CheckoutSession, error) {
	now := m.now()
	session := &models.CheckoutSession{
		UserID:       userID,
		Generation:   uuid.NewString(),
		Product:      product,
		ProductIndex: index,
		Step:         models.StepProductSelected,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}
	return session, nil
}

// Get returns the user's open session or ErrNoSession.
func (m *SessionManager) Get(ctx context.Context, userID int64) (*models.CheckoutSession, error) {
	session, err := m.store.GetSession(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("load checkout session: %w", err)
	}
	return session, nil
}

// Advance moves session to next and persists it.
func (m *SessionManager) Advance(ctx context.Context, session *models.CheckoutSession, next models.CheckoutStep) error {
	if !CanTransition(session.Step, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.Step, next)
	}
	session.Step = next
	session.UpdatedAt = m.now()
	if err := m.store.PutSession(ctx, session); err != nil {
		return fmt.Errorf("save checkout session: %w", err)
	}
	return nil
}

// SubmitEmail records the email of a session waiting for one.
// Invalid input leaves the session untouched.
func (m *SessionManager) SubmitEmail(ctx context.Context, userID int64, input string) (*models.CheckoutSession, error) {
	session, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session.Step != models.StepCollectingEmail {
		return session, fmt.Errorf("%w: email not expected in step %s", ErrInvalidTransition, session.Step)
	}

	email, err := ValidateEmail(input)
	if err != nil {
		return session, err
	}
	session.Email = email
	if err := m.Advance(ctx, session, models.StepCollectingAddress); err != nil {
		return nil, err
	}
	return session, nil
}

// SubmitAddress records the shipping address of a session waiting for one
// and moves it to order creation. Invalid input leaves the session untouched.
func (m *SessionManager) SubmitAddress(ctx context.Context, userID int64, input string) (*models.CheckoutSession, error) {
	session, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session.Step != models.StepCollectingAddress {
		return session, fmt.Errorf("%w: address not expected in step %s", ErrInvalidTransition, session.Step)
	}

	address, err := ParseAddress(input)
	if err != nil {
		return session, err
	}
	session.ShippingAddress = address
	if err := m.Advance(ctx, session, models.StepCreatingOrder); err != nil {
		return nil, err
	}
	return session, nil
}

// Complete ends the session that carried generation. It reports false when
// the session was cancelled or replaced in the meantime.
func (m *SessionManager) Complete(ctx context.Context, userID int64, generation string) (bool, error) {
	return m.store.DeleteSessionIfGeneration(ctx, userID, generation)
}

// Cancel deletes the user's session, whatever its step.
func (m *SessionManager) Cancel(ctx context.Context, userID int64) error {
	return m.store.DeleteSession(ctx, userID)
}
