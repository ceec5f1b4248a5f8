package store

import "fmt"

// RelationNotFoundError reports an attempt to create a note_tags or
// shared_notes edge referencing an entity that does not exist.
type RelationNotFoundError struct {
	Relation string // "note_tags" or "shared_notes"
	Kind     string // entity kind that was missing: "note", "tag", "user"
	ID       string
}

func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %s does not exist", e.Relation, e.Kind, e.ID)
}

// DuplicateError reports a uniqueness violation on entity creation, such as a
// reused email or a tag name already taken by the same owner.
type DuplicateError struct {
	Kind  string
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s with this %s already exists", e.Kind, e.Field)
}
