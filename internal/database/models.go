package database

import (
	"time"
)

// Product represents a catalog product
type Product struct {
	ID          string    `json:"id"`          // CUID2
	Title       string    `json:"title"`       // Display title
	Description string    `json:"description"` // Free-text description
	MerchantID  string    `json:"merchant_id"` // FK to merchants.id
	CategoryID  string    `json:"category_id"` // FK to categories.id
	Popularity  float64   `json:"popularity"`  // Windowed weighted interaction score
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Merchant represents a seller on the marketplace
type Merchant struct {
	ID         string    `json:"id"`         // CUID2
	Name       string    `json:"name"`       // Human-readable name
	Popularity float64   `json:"popularity"` // Windowed weighted interaction score
	CreatedAt  time.Time `json:"created_at"`
}

// Category represents a product category
type Category struct {
	ID        string    `json:"id"` // CUID2 or slug
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// InteractionType enumerates the supported interaction kinds
type InteractionType string

const (
	InteractionView     InteractionType = "VIEW"
	InteractionClick    InteractionType = "CLICK"
	InteractionCart     InteractionType = "CART"
	InteractionPurchase InteractionType = "PURCHASE"
)

// Valid reports whether t is a known interaction type
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionView, InteractionClick, InteractionCart, InteractionPurchase:
		return true
	}
	return false
}

// Weight returns the aggregation weight for the interaction type
func (t InteractionType) Weight() float64 {
	switch t {
	case InteractionView:
		return 0.5
	case InteractionClick:
		return 1
	case InteractionCart:
		return 3
	case InteractionPurchase:
		return 8
	}
	return 0
}

// Interaction is an append-only record of a user/session touching a product
type Interaction struct {
	ID        string          `json:"id"`      // CUID2
	UserID    *string         `json:"user_id"` // Nullable for anonymous sessions
	ProductID string          `json:"product_id"`
	Type      InteractionType `json:"type"`
	Value     float64         `json:"value"` // Per-event weight, default 1
	CreatedAt time.Time       `json:"created_at"`
}

// FeatureBlob is a persisted latent-factor vector
type FeatureBlob struct {
	Key       string    `json:"key"`       // userId or productId
	Namespace string    `json:"namespace"` // "user_factors" | "product_factors"
	Value     []float64 `json:"value"`     // JSON array of reals in the store
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductMeta is the hot-path projection of a product cached alongside
// scores. Serialized deterministically; unknown fields on read are ignored.
// Popularity may lag the store between aggregation runs.
type ProductMeta struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	MerchantID  string  `json:"merchantId"`
	CategoryID  string  `json:"categoryId"`
	Popularity  float64 `json:"popularity"`
}
