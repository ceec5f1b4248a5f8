package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"notekeeper/api/internal/auth"
	"notekeeper/api/internal/authpw"
	"notekeeper/api/internal/blob"
	"notekeeper/api/internal/config"
	"notekeeper/api/internal/notify"
	"notekeeper/api/internal/search"
	"notekeeper/api/internal/store"
	"notekeeper/api/internal/util"
)

const (
	maxHeadingLen      = 255
	maxTagNameLen      = 64
	maxAttachmentBytes = 10 << 20
	maxSearchLimit     = 100
	defaultSearchLimit = 20
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type SignUpInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateNoteInput struct {
	Heading string `json:"heading"`
	Text    string `json:"text"`
}

type ChangeHeadingInput struct {
	Heading string `json:"heading"`
}

type ChangeTextInput struct {
	Text string `json:"text"`
}

type TagNameInput struct {
	Name string `json:"name"`
}

type ChangeUserNameInput struct {
	DisplayName string `json:"displayName"`
}

type AttachmentUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

type dataStore interface {
	GetUser(context.Context, string) (store.User, error)
	ListUsersByEmailPrefix(context.Context, string) ([]store.User, error)
	ChangeUserName(context.Context, string, string) error
	DeleteUser(context.Context, string) error

	CreateNote(context.Context, store.Note) (store.Note, error)
	GetNote(context.Context, string) (store.Note, error)
	ListNotesByOwner(context.Context, string) ([]store.Note, error)
	ListNotesByTag(context.Context, string) ([]store.Note, error)
	ListSharedWithUser(context.Context, string) ([]store.SharedNote, error)
	ChangeNoteHeading(context.Context, string, string) error
	ChangeNoteText(context.Context, string, string) error
	DeleteNote(context.Context, string) error

	CreateTag(context.Context, store.Tag) (store.Tag, error)
	GetTag(context.Context, string) (store.Tag, error)
	ListTagsByOwner(context.Context, string) ([]store.Tag, error)
	ListTagsByNote(context.Context, string) ([]store.Tag, error)
	ChangeTagName(context.Context, string, string) error
	DeleteTag(context.Context, string) error

	AddNoteTag(context.Context, string, string) (bool, error)
	RemoveNoteTag(context.Context, string, string) (bool, error)
	ShareNote(context.Context, string, string) (bool, error)
	RevokeShare(context.Context, string, string) (bool, error)

	InsertAttachment(context.Context, store.Attachment) (store.Attachment, error)
	GetAttachment(context.Context, string, string) (store.Attachment, error)
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	DeleteAttachment(context.Context, string, string) error

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. Backed by Redis when configured,
// Postgres otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// notifier pushes change events to a user's live connections.
type notifier interface {
	NotifyNoteChanged(event notify.NoteChanged, targetUserID string)
	NotifyAccessDenied(event notify.AccessDenied, targetUserID string)
}

// blobStore holds attachment payloads. Nil when attachment storage is not
// configured.
type blobStore interface {
	Put(ctx context.Context, key string, content []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	accounts *authpw.Service
	sessions sessionStore
	notifier notifier
	search   *search.Service
	blob     blobStore
}

func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	accounts *authpw.Service,
	sessions sessionStore,
	dispatcher *notify.Dispatcher,
	searchService *search.Service,
	blobs *blob.Store,
) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		accounts: accounts,
		sessions: sessions,
		notifier: dispatcher,
		search:   searchService,
	}
	// A typed nil pointer must not become a non-nil interface.
	if blobs != nil {
		s.blob = blobs
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- sessions ---

func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	user, err := s.accounts.SignUp(ctx, authpw.SignUpRequest{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, input SignInInput) (Session, error) {
	user, err := s.accounts.SignIn(ctx, input.Email, input.Password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The session backend may hold a thin user record; re-read the source
	// of truth before minting new claims.
	full, err := s.store.GetUser(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, full)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUser(ctx, claims.Sub)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// --- users ---

func (s *Service) GetUser(ctx context.Context, userID string) (store.User, error) {
	return s.store.GetUser(ctx, userID)
}

func (s *Service) ChangeUserName(ctx context.Context, actorID string, input ChangeUserNameInput) (store.User, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return store.User{}, domainError(http.StatusBadRequest, "VALIDATION", "display name is required", nil)
	}
	if len(name) > maxHeadingLen {
		return store.User{}, domainError(http.StatusBadRequest, "VALIDATION", "display name is too long", nil)
	}
	if err := s.store.ChangeUserName(ctx, actorID, name); err != nil {
		return store.User{}, err
	}
	return s.store.GetUser(ctx, actorID)
}

// FindUsersByEmail looks up users by email prefix so an owner can discover a
// partner to share with.
func (s *Service) FindUsersByEmail(ctx context.Context, emailPrefix string) ([]store.User, error) {
	prefix := strings.ToLower(strings.TrimSpace(emailPrefix))
	if prefix == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION", "emailPrefix is required", nil)
	}
	return s.store.ListUsersByEmailPrefix(ctx, prefix)
}

// DeleteAccount removes the actor's account. Notes, tags, share grants, and
// refresh sessions cascade away in Postgres; attachment objects and search
// entries are cleaned up best-effort after the row delete succeeds.
func (s *Service) DeleteAccount(ctx context.Context, actorID string) error {
	notes, err := s.store.ListNotesByOwner(ctx, actorID)
	if err != nil {
		return err
	}
	var objectKeys []string
	if s.blob != nil {
		for _, note := range notes {
			attachments, err := s.store.ListAttachments(ctx, note.ID)
			if err != nil {
				return err
			}
			for _, attachment := range attachments {
				objectKeys = append(objectKeys, attachment.ObjectKey)
			}
		}
	}
	tags, err := s.store.ListTagsByOwner(ctx, actorID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteUser(ctx, actorID); err != nil {
		return err
	}

	for _, key := range objectKeys {
		_ = s.blob.Remove(ctx, key)
	}
	if s.search != nil {
		for _, note := range notes {
			s.search.DeleteNote(note.ID)
		}
		for _, tag := range tags {
			s.search.DeleteTag(tag.ID)
		}
	}
	return nil
}

// --- notes ---

func (s *Service) CreateNote(ctx context.Context, actorID string, input CreateNoteInput) (store.Note, error) {
	heading := strings.TrimSpace(input.Heading)
	if heading == "" {
		return store.Note{}, domainError(http.StatusBadRequest, "VALIDATION", "heading is required", nil)
	}
	if len(heading) > maxHeadingLen {
		return store.Note{}, domainError(http.StatusBadRequest, "VALIDATION", "heading is too long", nil)
	}

	created, err := s.store.CreateNote(ctx, store.Note{
		ID:      util.NewID("note"),
		OwnerID: actorID,
		Heading: heading,
		Text:    input.Text,
	})
	if err != nil {
		return store.Note{}, err
	}

	note, err := s.store.GetNote(ctx, created.ID)
	if err != nil {
		return store.Note{}, err
	}
	s.indexNote(note)
	return note, nil
}

func (s *Service) GetNote(ctx context.Context, actorID, noteID string) (store.Note, error) {
	return s.loadNoteForRead(ctx, actorID, noteID)
}

func (s *Service) ListMyNotes(ctx context.Context, actorID string) ([]store.Note, error) {
	return s.store.ListNotesByOwner(ctx, actorID)
}

func (s *Service) ListNotesByTag(ctx context.Context, actorID, tagID string) ([]store.Note, error) {
	tag, err := s.store.GetTag(ctx, tagID)
	if err != nil {
		return nil, err
	}
	if tag.OwnerID != actorID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "tag belongs to another user", nil)
	}
	return s.store.ListNotesByTag(ctx, tagID)
}

func (s *Service) ListSharedWithMe(ctx context.Context, actorID string) ([]store.SharedNote, error) {
	return s.store.ListSharedWithUser(ctx, actorID)
}

func (s *Service) ChangeNoteHeading(ctx context.Context, actorID, noteID string, input ChangeHeadingInput) (store.Note, error) {
	heading := strings.TrimSpace(input.Heading)
	if heading == "" {
		return store.Note{}, domainError(http.StatusBadRequest, "VALIDATION", "heading is required", nil)
	}
	if len(heading) > maxHeadingLen {
		return store.Note{}, domainError(http.StatusBadRequest, "VALIDATION", "heading is too long", nil)
	}

	current, err := s.loadOwnedNote(ctx, actorID, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if current.Heading == heading {
		return current, nil
	}

	if err := s.store.ChangeNoteHeading(ctx, noteID, heading); err != nil {
		return store.Note{}, err
	}
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	s.indexNote(note)
	s.notifyNoteChanged(note, actorID)
	return note, nil
}

func (s *Service) ChangeNoteText(ctx context.Context, actorID, noteID string, input ChangeTextInput) (store.Note, error) {
	current, err := s.loadOwnedNote(ctx, actorID, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if current.Text == input.Text {
		return current, nil
	}

	if err := s.store.ChangeNoteText(ctx, noteID, input.Text); err != nil {
		return store.Note{}, err
	}
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	s.indexNote(note)
	s.notifyNoteChanged(note, actorID)
	return note, nil
}

// DeleteNote removes the note and everything hanging off it. The viewers to
// notify and the attachment object keys are captured before the row goes
// away, since the cascade takes the attachment metadata with it.
func (s *Service) DeleteNote(ctx context.Context, actorID, noteID string) error {
	note, err := s.loadOwnedNote(ctx, actorID, noteID)
	if err != nil {
		return err
	}

	var attachments []store.Attachment
	if s.blob != nil {
		attachments, err = s.store.ListAttachments(ctx, noteID)
		if err != nil {
			return err
		}
	}

	if err := s.store.DeleteNote(ctx, noteID); err != nil {
		return err
	}
	for _, attachment := range attachments {
		_ = s.blob.Remove(ctx, attachment.ObjectKey)
	}
	if s.search != nil {
		s.search.DeleteNote(noteID)
	}
	s.notifyNoteChanged(note, actorID)
	return nil
}

// --- tags ---

func (s *Service) CreateTag(ctx context.Context, actorID string, input TagNameInput) (store.Tag, error) {
	name, err := validTagName(input.Name)
	if err != nil {
		return store.Tag{}, err
	}
	tag, err := s.store.CreateTag(ctx, store.Tag{
		ID:      util.NewID("tag"),
		OwnerID: actorID,
		Name:    name,
	})
	if err != nil {
		return store.Tag{}, err
	}
	s.indexTag(tag)
	return tag, nil
}

func (s *Service) ListMyTags(ctx context.Context, actorID string) ([]store.Tag, error) {
	return s.store.ListTagsByOwner(ctx, actorID)
}

func (s *Service) ChangeTagName(ctx context.Context, actorID, tagID string, input TagNameInput) (store.Tag, error) {
	name, err := validTagName(input.Name)
	if err != nil {
		return store.Tag{}, err
	}
	tag, err := s.loadOwnedTag(ctx, actorID, tagID)
	if err != nil {
		return store.Tag{}, err
	}
	if tag.Name == name {
		return tag, nil
	}
	if err := s.store.ChangeTagName(ctx, tagID, name); err != nil {
		return store.Tag{}, err
	}
	tag, err = s.store.GetTag(ctx, tagID)
	if err != nil {
		return store.Tag{}, err
	}
	s.indexTag(tag)
	return tag, nil
}

func (s *Service) DeleteTag(ctx context.Context, actorID, tagID string) error {
	if _, err := s.loadOwnedTag(ctx, actorID, tagID); err != nil {
		return err
	}
	if err := s.store.DeleteTag(ctx, tagID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteTag(tagID)
	}
	return nil
}

func validTagName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", domainError(http.StatusBadRequest, "VALIDATION", "tag name is required", nil)
	}
	if len(name) > maxTagNameLen {
		return "", domainError(http.StatusBadRequest, "VALIDATION", "tag name is too long", nil)
	}
	return name, nil
}

func (s *Service) ListNoteTags(ctx context.Context, actorID, noteID string) ([]store.Tag, error) {
	if _, err := s.loadNoteForRead(ctx, actorID, noteID); err != nil {
		return nil, err
	}
	return s.store.ListTagsByNote(ctx, noteID)
}

// --- note/tag relation ---

func (s *Service) AddTagToNote(ctx context.Context, actorID, noteID, tagID string) (store.Note, error) {
	if _, err := s.loadOwnedNote(ctx, actorID, noteID); err != nil {
		return store.Note{}, err
	}
	if _, err := s.loadOwnedTag(ctx, actorID, tagID); err != nil {
		return store.Note{}, err
	}

	changed, err := s.store.AddNoteTag(ctx, noteID, tagID)
	if err != nil {
		return store.Note{}, err
	}
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if changed {
		s.indexNote(note)
		s.notifyNoteChanged(note, actorID)
	}
	return note, nil
}

func (s *Service) RemoveTagFromNote(ctx context.Context, actorID, noteID, tagID string) (store.Note, error) {
	if _, err := s.loadOwnedNote(ctx, actorID, noteID); err != nil {
		return store.Note{}, err
	}

	changed, err := s.store.RemoveNoteTag(ctx, noteID, tagID)
	if err != nil {
		return store.Note{}, err
	}
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if changed {
		s.indexNote(note)
		s.notifyNoteChanged(note, actorID)
	}
	return note, nil
}

// --- sharing ---

func (s *Service) ShareNote(ctx context.Context, actorID, noteID, partnerID string) (store.Note, error) {
	if _, err := s.loadOwnedNote(ctx, actorID, noteID); err != nil {
		return store.Note{}, err
	}
	if partnerID == actorID {
		return store.Note{}, domainError(http.StatusBadRequest, "VALIDATION", "cannot share a note with its owner", nil)
	}

	changed, err := s.store.ShareNote(ctx, noteID, partnerID)
	if err != nil {
		return store.Note{}, err
	}
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if changed {
		s.indexNote(note)
		s.notifyNoteChanged(note, actorID)
	}
	return note, nil
}

// RevokeShare removes a partner's read access. The revoked user gets an
// access-denied push; nobody else is notified, and revoking an absent share
// is a silent no-op.
func (s *Service) RevokeShare(ctx context.Context, actorID, noteID, partnerID string) (store.Note, error) {
	if _, err := s.loadOwnedNote(ctx, actorID, noteID); err != nil {
		return store.Note{}, err
	}

	changed, err := s.store.RevokeShare(ctx, noteID, partnerID)
	if err != nil {
		return store.Note{}, err
	}
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if changed {
		s.indexNote(note)
		if partnerID != actorID {
			s.notifier.NotifyAccessDenied(notify.AccessDenied{NoteID: noteID}, partnerID)
		}
	}
	return note, nil
}

// --- attachments ---

func (s *Service) AddAttachment(ctx context.Context, actorID, noteID string, upload AttachmentUpload) (store.Attachment, error) {
	if s.blob == nil {
		return store.Attachment{}, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_DISABLED", "attachment storage is not configured", nil)
	}
	fileName := strings.TrimSpace(upload.FileName)
	if fileName == "" {
		return store.Attachment{}, domainError(http.StatusBadRequest, "VALIDATION", "file name is required", nil)
	}
	if len(upload.Data) == 0 {
		return store.Attachment{}, domainError(http.StatusBadRequest, "VALIDATION", "attachment is empty", nil)
	}
	if len(upload.Data) > maxAttachmentBytes {
		return store.Attachment{}, domainError(http.StatusRequestEntityTooLarge, "ATTACHMENT_TOO_LARGE", "attachment exceeds the size limit", nil)
	}
	if _, err := s.loadOwnedNote(ctx, actorID, noteID); err != nil {
		return store.Attachment{}, err
	}

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attachmentID := util.NewID("att")
	objectKey := noteID + "/" + attachmentID
	if err := s.blob.Put(ctx, objectKey, upload.Data, contentType); err != nil {
		return store.Attachment{}, err
	}

	attachment, err := s.store.InsertAttachment(ctx, store.Attachment{
		ID:          attachmentID,
		NoteID:      noteID,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(upload.Data)),
		ObjectKey:   objectKey,
	})
	if err != nil {
		// Metadata is the source of truth; drop the orphaned object.
		_ = s.blob.Remove(ctx, objectKey)
		return store.Attachment{}, err
	}

	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Attachment{}, err
	}
	s.notifyNoteChanged(note, actorID)
	return attachment, nil
}

func (s *Service) ListAttachments(ctx context.Context, actorID, noteID string) ([]store.Attachment, error) {
	if _, err := s.loadNoteForRead(ctx, actorID, noteID); err != nil {
		return nil, err
	}
	return s.store.ListAttachments(ctx, noteID)
}

func (s *Service) GetAttachment(ctx context.Context, actorID, noteID, attachmentID string) (store.Attachment, []byte, error) {
	if s.blob == nil {
		return store.Attachment{}, nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_DISABLED", "attachment storage is not configured", nil)
	}
	if _, err := s.loadNoteForRead(ctx, actorID, noteID); err != nil {
		return store.Attachment{}, nil, err
	}
	attachment, err := s.store.GetAttachment(ctx, noteID, attachmentID)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	data, err := s.blob.Get(ctx, attachment.ObjectKey)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	return attachment, data, nil
}

func (s *Service) DeleteAttachment(ctx context.Context, actorID, noteID, attachmentID string) error {
	if _, err := s.loadOwnedNote(ctx, actorID, noteID); err != nil {
		return err
	}
	attachment, err := s.store.GetAttachment(ctx, noteID, attachmentID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAttachment(ctx, noteID, attachmentID); err != nil {
		return err
	}
	if s.blob != nil {
		_ = s.blob.Remove(ctx, attachment.ObjectKey)
	}
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return err
	}
	s.notifyNoteChanged(note, actorID)
	return nil
}

// --- search ---

func (s *Service) Search(ctx context.Context, actorID, text, filterType string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(search.Query{
		Text:       text,
		FilterType: search.ResultType(filterType),
		UserID:     actorID,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

// --- helpers ---

// loadNoteForRead fetches a note the actor may view: the owner or a partner
// the note was shared with.
func (s *Service) loadNoteForRead(ctx context.Context, actorID, noteID string) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if note.OwnerID == actorID {
		return note, nil
	}
	for _, partner := range note.Partners {
		if partner.ID == actorID {
			return note, nil
		}
	}
	return store.Note{}, domainError(http.StatusForbidden, "FORBIDDEN", "no access to this note", nil)
}

func (s *Service) loadOwnedNote(ctx context.Context, actorID, noteID string) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if note.OwnerID != actorID {
		return store.Note{}, domainError(http.StatusForbidden, "FORBIDDEN", "only the owner may modify this note", nil)
	}
	return note, nil
}

func (s *Service) loadOwnedTag(ctx context.Context, actorID, tagID string) (store.Tag, error) {
	tag, err := s.store.GetTag(ctx, tagID)
	if err != nil {
		return store.Tag{}, err
	}
	if tag.OwnerID != actorID {
		return store.Tag{}, domainError(http.StatusForbidden, "FORBIDDEN", "tag belongs to another user", nil)
	}
	return tag, nil
}

// notifyNoteChanged pushes a change event to everyone who can see the note
// except the actor: the owner plus every partner. Runs only after the
// mutation is durable.
func (s *Service) notifyNoteChanged(note store.Note, actorID string) {
	event := notify.NoteChanged{
		NoteID:    note.ID,
		OwnerID:   note.OwnerID,
		Heading:   note.Heading,
		UpdatedAt: note.UpdatedAt,
	}

	seen := map[string]struct{}{actorID: {}}
	targets := make([]string, 0, len(note.Partners)+1)
	if _, dup := seen[note.OwnerID]; !dup {
		seen[note.OwnerID] = struct{}{}
		targets = append(targets, note.OwnerID)
	}
	for _, partner := range note.Partners {
		if _, dup := seen[partner.ID]; dup {
			continue
		}
		seen[partner.ID] = struct{}{}
		targets = append(targets, partner.ID)
	}
	for _, userID := range targets {
		s.notifier.NotifyNoteChanged(event, userID)
	}
}

func (s *Service) indexNote(note store.Note) {
	if s.search == nil {
		return
	}
	partnerIDs := make([]string, 0, len(note.Partners))
	for _, partner := range note.Partners {
		partnerIDs = append(partnerIDs, partner.ID)
	}
	s.search.IndexNote(search.NoteRecord{
		ID:         note.ID,
		Heading:    note.Heading,
		Text:       note.Text,
		OwnerID:    note.OwnerID,
		PartnerIDs: partnerIDs,
	})
}

func (s *Service) indexTag(tag store.Tag) {
	if s.search == nil {
		return
	}
	s.search.IndexTag(search.TagRecord{
		ID:      tag.ID,
		Name:    tag.Name,
		OwnerID: tag.OwnerID,
	})
}

// IsNotFound reports whether err is the store's missing-row signal.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
