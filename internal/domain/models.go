// Package domain defines the persistence models for conversations, sentiment
// analyses, collectible cards, ownership history, the public museum
// projection, and the card event log. These types are mapped with GORM and
// form the core data layer of the application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message type labels used in the per-conversation histogram.
const (
	MessageTypeText  = "text"
	MessageTypeVoice = "voice"
	MessageTypeImage = "image"
)

// Rarity tiers, from least to most rare.
const (
	TierCommon    = "common"
	TierUncommon  = "uncommon"
	TierRare      = "rare"
	TierEpic      = "epic"
	TierLegendary = "legendary"
)

// Ownership acquisition types.
const (
	AcquisitionClaimed   = "claimed"
	AcquisitionDefaulted = "defaulted"
	AcquisitionPurchased = "purchased"
)

// Museum visibility states. The lattice is strict: public may move to
// redacted or burned; private is reachable only at creation time; nothing
// leaves burned.
const (
	VisibilityPublic   = "public"
	VisibilityRedacted = "redacted"
	VisibilityBurned   = "burned"
	VisibilityPrivate  = "private"
)

// Card lifecycle event types, one per transition.
const (
	EventGenerated = "generated"
	EventOffered   = "offered"
	EventClaimed   = "claimed"
	EventDeclined  = "declined"
	EventDefaulted = "defaulted"
	EventBurned    = "burned"
	EventPrinted   = "printed"
)

// Conversation represents an exchange between two or more participants.
// It is created on the first message and accumulates message_count and
// last_message_at on every send. Conversations are never hard-deleted;
// DeletedAt soft-archives them.
type Conversation struct {
	ID            string         `json:"id"              gorm:"type:char(36);primaryKey"`
	CreatorID     string         `json:"creator_id"      gorm:"type:varchar(64);not null;index"`
	IsGroup       bool           `json:"is_group"        gorm:"not null;default:false"`
	MessageCount  int            `json:"message_count"   gorm:"not null;default:0"`
	LastMessageAt *time.Time     `json:"last_message_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// ConversationParticipant is the membership relation between users and
// conversations. A user appears at most once per conversation.
type ConversationParticipant struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_conv_participant,priority:1"`
	UserID         string    `json:"user_id"         gorm:"type:varchar(64);not null;index;uniqueIndex:ux_conv_participant,priority:2"`
	Notable        bool      `json:"notable"         gorm:"not null;default:false"`
	JoinedAt       time.Time `json:"joined_at"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationParticipant.
func (ConversationParticipant) TableName() string { return "conversation_participants" }

// Message is a single utterance within a conversation. Messages are retained
// so the eligibility gate can derive the type histogram and timing variance
// that feed rarity scoring.
type Message struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	SenderID       string    `json:"sender_id"       gorm:"type:varchar(64);not null"`
	Type           string    `json:"type"            gorm:"type:varchar(16);not null;default:'text';check:type IN ('text','voice','image')"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// SentimentAnalysis is the cached output of the external sentiment
// collaborator, one row per conversation. Rows are immutable once written;
// the unique index on ConversationID is the recompute-is-a-no-op guard.
type SentimentAnalysis struct {
	ID             string  `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string  `json:"conversation_id" gorm:"type:char(36);not null;uniqueIndex:ux_sentiment_conversation"`
	Score          float64 `json:"score"           gorm:"not null"`
	SurpriseFactor float64 `json:"surprise_factor" gorm:"not null"`
	// Keywords is a JSON-encoded string array (at most ten entries).
	Keywords        string    `json:"keywords"         gorm:"type:text;not null;default:'[]'"`
	BreakupDetected bool      `json:"breakup_detected" gorm:"not null;default:false"`
	Metadata        string    `json:"metadata"         gorm:"type:text;not null;default:'{}'"`
	CreatedAt       time.Time `json:"created_at"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SentimentAnalysis.
func (SentimentAnalysis) TableName() string { return "sentiment_analyses" }

// Card is the collectible artifact generated from a conversation, at most one
// per conversation (unique index on ConversationID). Cards are never
// physically deleted; burning sets IsBurned and leaves a tombstone.
type Card struct {
	ID             string `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string `json:"conversation_id" gorm:"type:char(36);not null;uniqueIndex:ux_card_conversation"`
	SentimentID    string `json:"sentiment_id"    gorm:"type:char(36);not null"`
	// ArtworkURL is an opaque reference produced by the external renderer;
	// a placeholder when rendering failed or was skipped.
	ArtworkURL string `json:"artwork_url" gorm:"type:text;not null"`
	// FrameStyle mirrors the final rarity tier and labels the rendered object.
	FrameStyle string `json:"frame_style" gorm:"type:varchar(16);not null"`
	Title      string `json:"title"       gorm:"type:varchar(255);not null"`
	Caption    string `json:"caption"     gorm:"type:text;not null"`
	// RarityData is the JSON-encoded rarity calculation breakdown.
	RarityData string `json:"rarity_data" gorm:"type:text;not null"`
	IsBurned   bool   `json:"is_burned"   gorm:"not null;default:false"`
	// OfferDeadline is stamped when the card is offered to participants.
	OfferDeadline *time.Time `json:"offer_deadline"`
	GeneratedAt   time.Time  `json:"generated_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Card.
func (Card) TableName() string { return "cards" }

// CardOwnership is an append-only ownership record. Transfers never update a
// row in place: the old row is marked superseded and a new row is inserted
// with PreviousOwnerID set. At most one non-superseded row may exist per card,
// enforced by a partial unique index created in repo.AutoMigrate:
//
//	CREATE UNIQUE INDEX ux_card_ownership_active
//	ON card_ownerships(card_id) WHERE superseded = 0
//
// That index is the atomic primitive the claim race and the default race both
// resolve on.
type CardOwnership struct {
	ID              string     `json:"id"                gorm:"type:char(36);primaryKey"`
	CardID          string     `json:"card_id"           gorm:"type:char(36);not null;index"`
	OwnerID         string     `json:"owner_id"          gorm:"type:varchar(64);not null;index"`
	AcquisitionType string     `json:"acquisition_type"  gorm:"type:varchar(16);not null;check:acquisition_type IN ('claimed','defaulted','purchased')"`
	Superseded      bool       `json:"superseded"        gorm:"not null;default:false"`
	PreviousOwnerID *string    `json:"previous_owner_id,omitempty" gorm:"type:varchar(64)"`
	ClaimDeadline   *time.Time `json:"claim_deadline,omitempty"`
	AcquiredAt      time.Time  `json:"acquired_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Card Card `json:"-" gorm:"foreignKey:CardID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CardOwnership.
func (CardOwnership) TableName() string { return "card_ownerships" }

// MuseumEntry is the public visibility projection for a card. One row per
// card, created alongside the card in public visibility.
type MuseumEntry struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	CardID     string    `json:"card_id"    gorm:"type:char(36);not null;uniqueIndex:ux_museum_card"`
	Visibility string    `json:"visibility" gorm:"type:varchar(16);not null;default:'public';check:visibility IN ('public','redacted','burned','private')"`
	ViewCount  int64     `json:"view_count" gorm:"not null;default:0"`
	Featured   bool      `json:"featured"   gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Card Card `json:"-" gorm:"foreignKey:CardID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MuseumEntry.
func (MuseumEntry) TableName() string { return "museum_entries" }

// CardEvent is one append-only audit row per lifecycle transition. Events are
// never mutated or deleted; they are the sole source of truth for audit and
// analytics. IDs are ULIDs, so per-card insertion order is recoverable by
// sorting on ID alone.
type CardEvent struct {
	ID        string    `json:"id"         gorm:"type:char(26);primaryKey"`
	CardID    string    `json:"card_id"    gorm:"type:char(36);not null;index:idx_card_events,priority:1"`
	EventType string    `json:"event_type" gorm:"type:varchar(16);not null;check:event_type IN ('generated','offered','claimed','declined','defaulted','burned','printed')"`
	UserID    *string   `json:"user_id,omitempty" gorm:"type:varchar(64)"`
	Metadata  string    `json:"metadata"   gorm:"type:text;not null;default:'{}'"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_card_events,priority:2"`
}

// TableName returns the database table name for CardEvent.
func (CardEvent) TableName() string { return "card_events" }

// ValidTier reports whether s is one of the five rarity tiers.
func ValidTier(s string) bool {
	switch s {
	case TierCommon, TierUncommon, TierRare, TierEpic, TierLegendary:
		return true
	}
	return false
}
