package store

import "time"

type User struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Heading   string    `json:"heading"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Derived, populated by GetNote: tag names and read-access partners.
	TagNames []string `json:"tagNames"`
	Partners []User   `json:"partners"`
}

type Tag struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
}

// SharedNote is the partner's view of a note someone else owns.
type SharedNote struct {
	ID        string    `json:"id"`
	Owner     User      `json:"owner"`
	Heading   string    `json:"heading"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Attachment struct {
	ID          string    `json:"id"`
	NoteID      string    `json:"noteId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	ObjectKey   string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}
