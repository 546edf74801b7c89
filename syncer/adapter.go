package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/putto11262002/roomsync/identity"
	"github.com/putto11262002/roomsync/media"
	"github.com/putto11262002/roomsync/models"
	"github.com/putto11262002/roomsync/remote"
	"golang.org/x/sync/errgroup"
)

// ErrNoIdentity is returned when no identity can be established for a remote call.
var ErrNoIdentity = errors.New("no identity")

// Adapter translates local state changes into writes against the remote document store.
//
// Every method first ensures an ambient identity. Mutations go through upsert: a partial
// update is attempted first and, if it fails, a single create-or-merge of the same fields
// is written instead.
type Adapter struct {
	docs     remote.DocumentStore
	identity identity.Provider
	promoter *media.Promoter
	logger   *slog.Logger
	now      func() time.Time
}

// NewAdapter returns an adapter. promoter may be nil, in which case ephemeral media
// references are never written remotely.
func NewAdapter(docs remote.DocumentStore, id identity.Provider, promoter *media.Promoter, logger *slog.Logger) *Adapter {
	return &Adapter{
		docs:     docs,
		identity: id,
		promoter: promoter,
		logger:   logger,
		now:      time.Now,
	}
}

func (a *Adapter) ensure(ctx context.Context) (identity.Identity, error) {
	id, err := a.identity.Ensure(ctx)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	return id, nil
}

// upsert updates the dotted fields of the document, falling back to merging them into a
// new or existing document when the update fails.
func (a *Adapter) upsert(ctx context.Context, path string, fields map[string]any) error {
	err := a.docs.Update(ctx, path, fields)
	if err == nil {
		return nil
	}
	a.logger.Debug("upsert: update failed, merging", slog.String("path", path), slog.String("error", err.Error()))
	if err := a.docs.Set(ctx, path, remote.Expand(fields), remote.MergeAll); err != nil {
		return fmt.Errorf("Set(%s): %w", path, err)
	}
	return nil
}

// promote returns a durable version of ref. When ref cannot be promoted the empty
// reference is returned so no ephemeral handle ever reaches the remote store.
func (a *Adapter) promote(ctx context.Context, ref string) string {
	if !media.IsEphemeral(ref) {
		return ref
	}
	if a.promoter == nil {
		return ""
	}
	u, err := a.promoter.Promote(ctx, ref)
	if err != nil {
		a.logger.Error("media promotion failed", slog.String("error", err.Error()))
		return ""
	}
	return u
}

// CreateRoom writes the room document, one member document per member and the personal
// room index of every member. The room creator is seeded as admin. It falls back to the
// current identity only when the room carries no creator.
// onAvatar receives the durable avatar URL when the avatar had to be promoted.
func (a *Adapter) CreateRoom(ctx context.Context, room models.Room, settings models.RoomSettings, onAvatar func(string)) error {
	id, err := a.ensure(ctx)
	if err != nil {
		return err
	}

	if media.IsEphemeral(room.AvatarURL) {
		room.AvatarURL = a.promote(ctx, room.AvatarURL)
		if room.AvatarURL != "" && onAvatar != nil {
			onAvatar(room.AvatarURL)
		}
	}
	if media.IsEphemeral(settings.Basic.ThumbnailURL) {
		settings.Basic.ThumbnailURL = room.AvatarURL
	}

	settings = settings.Clone()
	if settings.Members.Roles == nil {
		settings.Members.Roles = map[string]models.Role{}
	}
	creator := room.CreatedBy
	if creator == "" {
		creator = id.UserID
	}
	settings.Members.Roles[creator] = models.Admin

	data, err := roomData(room)
	if err != nil {
		return err
	}
	sdata, err := settingsData(settings)
	if err != nil {
		return err
	}
	data["settings"] = sdata
	data["archived"] = false
	if err := a.upsert(ctx, roomPath(room.ID), data); err != nil {
		return err
	}

	joinedAt := a.now()
	writes := make([]remote.Write, 0, 2*len(room.Members)+2)
	members := room.Members
	if !room.HasMember(creator) {
		members = append(members[:len(members):len(members)], creator)
	}
	for _, uid := range members {
		role := models.Member
		if r, ok := settings.Members.Roles[uid]; ok {
			role = r
		}
		md, err := remote.Data(memberData{Role: role, JoinedAt: joinedAt})
		if err != nil {
			return err
		}
		ud, err := remote.Data(userRoomData{RoomID: room.ID, JoinedAt: joinedAt})
		if err != nil {
			return err
		}
		writes = append(writes,
			remote.MergeWrite(memberPath(room.ID, uid), md),
			remote.MergeWrite(userRoomPath(uid, room.ID), ud))
	}
	if err := a.docs.Batch(ctx, writes); err != nil {
		return fmt.Errorf("Batch: %w", err)
	}
	return nil
}

// SendMessage promotes the message media and writes the message and the room preview.
// onPromoted receives the rewritten references when any had to be promoted.
func (a *Adapter) SendMessage(ctx context.Context, msg models.Message, onPromoted func(models.MessagePatch)) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}

	// Failed promotions are dropped from the remote copy but kept locally.
	var patch models.MessagePatch
	var promoted bool
	if media.IsEphemeral(msg.ImageURL) {
		msg.ImageURL = a.promote(ctx, msg.ImageURL)
		if msg.ImageURL != "" {
			patch.ImageURL = &msg.ImageURL
			promoted = true
		}
	}
	if len(msg.AlbumURLs) > 0 {
		remoteAlbum := make([]string, 0, len(msg.AlbumURLs))
		localAlbum := make([]string, 0, len(msg.AlbumURLs))
		for _, ref := range msg.AlbumURLs {
			u := a.promote(ctx, ref)
			if u == "" {
				localAlbum = append(localAlbum, ref)
				continue
			}
			if u != ref {
				promoted = true
			}
			remoteAlbum = append(remoteAlbum, u)
			localAlbum = append(localAlbum, u)
		}
		msg.AlbumURLs = remoteAlbum
		if promoted {
			patch.AlbumURLs = localAlbum
		}
	}
	if promoted && onPromoted != nil {
		onPromoted(patch)
	}

	data, err := remote.Data(msg)
	if err != nil {
		return err
	}
	if err := a.upsert(ctx, messagePath(msg.RoomID, msg.ID), data); err != nil {
		return err
	}
	return a.upsert(ctx, roomPath(msg.RoomID), map[string]any{
		"lastMessage":   msg.Content,
		"lastMessageAt": msg.CreatedAt,
	})
}

// BumpUnread increments the unread counter of every recipient concurrently.
// Increments are not idempotent and must not be retried.
func (a *Adapter) BumpUnread(ctx context.Context, roomID string, recipients []string) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, uid := range recipients {
		g.Go(func() error {
			if err := a.docs.Increment(ctx, memberPath(roomID, uid), "unread", 1); err != nil {
				return fmt.Errorf("Increment(%s): %w", uid, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// MarkRead resets the unread counter of the user.
func (a *Adapter) MarkRead(ctx context.Context, roomID, userID string) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	return a.upsert(ctx, memberPath(roomID, userID), map[string]any{"unread": 0})
}

// UpdateReactions writes only the aggregate reaction fields of the message.
func (a *Adapter) UpdateReactions(ctx context.Context, roomID, messageID string, byUser map[string]string, counts map[string]int) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	if byUser == nil {
		byUser = map[string]string{}
	}
	if counts == nil {
		counts = map[string]int{}
	}
	return a.upsert(ctx, messagePath(roomID, messageID), map[string]any{
		"reactionsByUser": byUser,
		"reactionsCount":  counts,
	})
}

func (a *Adapter) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	if err := a.docs.Delete(ctx, messagePath(roomID, messageID)); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// SaveSettings writes the whole settings object of the room.
func (a *Adapter) SaveSettings(ctx context.Context, roomID string, settings models.RoomSettings) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	data, err := settingsData(settings)
	if err != nil {
		return err
	}
	return a.upsert(ctx, roomPath(roomID), map[string]any{"settings": data})
}

// SetPrivacy writes the public flag and the password together. A nil password removes it.
func (a *Adapter) SetPrivacy(ctx context.Context, roomID string, isPublic bool, password *string) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	var lock any = remote.DeleteField
	if password != nil {
		lock = *password
	}
	fields := map[string]any{
		"isPublic":                       isPublic,
		"settings.basic.isPublic":        isPublic,
		"settings.security.passwordLock": lock,
	}
	return a.upsert(ctx, roomPath(roomID), fields)
}

// MembershipChange describes a change to the members of a room.
type MembershipChange struct {
	RoomID  string
	Added   []string
	Removed []string
	// Settings, if set, replaces the stored settings in the same write.
	Settings *models.RoomSettings
}

// ApplyMembership updates the member map of the room and the member and personal index
// documents of every affected user.
func (a *Adapter) ApplyMembership(ctx context.Context, change MembershipChange) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}

	fields := make(map[string]any, len(change.Added)+len(change.Removed)+1)
	for _, uid := range change.Added {
		fields["members."+uid] = true
	}
	for _, uid := range change.Removed {
		fields["members."+uid] = remote.DeleteField
	}
	if change.Settings != nil {
		data, err := settingsData(*change.Settings)
		if err != nil {
			return err
		}
		fields["settings"] = data
	}
	if len(fields) > 0 {
		if err := a.upsert(ctx, roomPath(change.RoomID), fields); err != nil {
			return err
		}
	}

	writes := make([]remote.Write, 0, 2*(len(change.Added)+len(change.Removed)))
	joinedAt := a.now()
	for _, uid := range change.Added {
		role := models.Member
		if change.Settings != nil {
			if r, ok := change.Settings.RoleOf(uid); ok {
				role = r
			}
		}
		md, err := remote.Data(memberData{Role: role, JoinedAt: joinedAt})
		if err != nil {
			return err
		}
		ud, err := remote.Data(userRoomData{RoomID: change.RoomID, JoinedAt: joinedAt})
		if err != nil {
			return err
		}
		writes = append(writes,
			remote.MergeWrite(memberPath(change.RoomID, uid), md),
			remote.MergeWrite(userRoomPath(uid, change.RoomID), ud))
	}
	for _, uid := range change.Removed {
		writes = append(writes,
			remote.DeleteWrite(memberPath(change.RoomID, uid)),
			remote.DeleteWrite(userRoomPath(uid, change.RoomID)))
	}
	if len(writes) == 0 {
		return nil
	}
	if err := a.docs.Batch(ctx, writes); err != nil {
		return fmt.Errorf("Batch: %w", err)
	}
	return nil
}

// SetRoles writes the settings and the role of every listed member document.
func (a *Adapter) SetRoles(ctx context.Context, roomID string, settings models.RoomSettings, users ...string) error {
	if err := a.SaveSettings(ctx, roomID, settings); err != nil {
		return err
	}
	for _, uid := range users {
		role, ok := settings.RoleOf(uid)
		if !ok {
			role = models.Member
		}
		if err := a.upsert(ctx, memberPath(roomID, uid), map[string]any{"role": role}); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveRoom flags the room as archived. The room and its history are kept.
func (a *Adapter) ArchiveRoom(ctx context.Context, roomID string) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	return a.upsert(ctx, roomPath(roomID), map[string]any{
		"archived":   true,
		"archivedAt": a.now(),
	})
}

// RemoveUserRoom removes the room from the personal room index of the user.
func (a *Adapter) RemoveUserRoom(ctx context.Context, userID, roomID string) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	if err := a.docs.Delete(ctx, userRoomPath(userID, roomID)); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// FetchRoom reads the room document.
func (a *Adapter) FetchRoom(ctx context.Context, roomID string) (RemoteRoom, error) {
	if _, err := a.ensure(ctx); err != nil {
		return RemoteRoom{}, err
	}
	doc, err := a.docs.Get(ctx, roomPath(roomID))
	if err != nil {
		return RemoteRoom{}, fmt.Errorf("Get: %w", err)
	}
	return decodeRoom(doc)
}

// FindDMRoom looks for a dm room whose member map holds both users.
func (a *Adapter) FindDMRoom(ctx context.Context, me, other string) (models.Room, bool, error) {
	if _, err := a.ensure(ctx); err != nil {
		return models.Room{}, false, err
	}
	docs, err := a.docs.Query(ctx, "rooms",
		remote.Equal("type", models.DMRoom),
		remote.Equal("members."+me, true),
		remote.Equal("members."+other, true))
	if err != nil {
		return models.Room{}, false, fmt.Errorf("Query: %w", err)
	}
	for _, doc := range docs {
		r, err := decodeRoom(doc)
		if err != nil {
			a.logger.Warn("skipping undecodable room", slog.String("path", doc.Path), slog.String("error", err.Error()))
			continue
		}
		if r.Archived || !r.Room.IsDMBetween(me, other) {
			continue
		}
		return r.Room, true, nil
	}
	return models.Room{}, false, nil
}

// CreateDMRoom writes the room, both member documents and both personal index entries
// in one atomic batch.
func (a *Adapter) CreateDMRoom(ctx context.Context, room models.Room, settings models.RoomSettings) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	data, err := roomData(room)
	if err != nil {
		return err
	}
	sdata, err := settingsData(settings)
	if err != nil {
		return err
	}
	data["settings"] = sdata
	data["archived"] = false

	joinedAt := a.now()
	writes := []remote.Write{remote.SetWrite(roomPath(room.ID), data)}
	for _, uid := range room.Members {
		role, ok := settings.RoleOf(uid)
		if !ok {
			role = models.Member
		}
		md, err := remote.Data(memberData{Role: role, JoinedAt: joinedAt})
		if err != nil {
			return err
		}
		ud, err := remote.Data(userRoomData{RoomID: room.ID, JoinedAt: joinedAt})
		if err != nil {
			return err
		}
		writes = append(writes,
			remote.SetWrite(memberPath(room.ID, uid), md),
			remote.SetWrite(userRoomPath(uid, room.ID), ud))
	}
	if err := a.docs.Batch(ctx, writes); err != nil {
		return fmt.Errorf("Batch: %w", err)
	}
	return nil
}

// SaveInvite writes the invite code into the room settings and appends the invite to
// the invites collection.
func (a *Adapter) SaveInvite(ctx context.Context, invite models.Invite) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	if err := a.upsert(ctx, roomPath(invite.RoomID), map[string]any{
		"settings.basic.inviteCode": invite.Code,
	}); err != nil {
		return err
	}
	data, err := remote.Data(invite)
	if err != nil {
		return err
	}
	if err := a.docs.Set(ctx, invitePath(invite.RoomID, invite.Code), data, remote.Replace); err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	return nil
}

// SetRoomTTL writes the room expiry. A nil expiry removes it.
func (a *Adapter) SetRoomTTL(ctx context.Context, roomID string, expiresAt *time.Time) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	var v any = remote.DeleteField
	if expiresAt != nil {
		v = *expiresAt
	}
	return a.upsert(ctx, roomPath(roomID), map[string]any{"expiresAt": v})
}

// SetMessageTTL writes the message time to live of the room. A nil ttl removes it.
func (a *Adapter) SetMessageTTL(ctx context.Context, roomID string, ttlMs *int64) error {
	if _, err := a.ensure(ctx); err != nil {
		return err
	}
	var v any = remote.DeleteField
	if ttlMs != nil {
		v = *ttlMs
	}
	return a.upsert(ctx, roomPath(roomID), map[string]any{"messageTtlMs": v})
}

// RoomMeta is a partial update of the descriptive fields of a room.
type RoomMeta struct {
	Title       *string `json:"title,omitempty"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdateRoomMeta writes the given fields of the room, promoting the avatar first.
// It returns the meta as written.
func (a *Adapter) UpdateRoomMeta(ctx context.Context, roomID string, meta RoomMeta) (RoomMeta, error) {
	if _, err := a.ensure(ctx); err != nil {
		return meta, err
	}
	fields := map[string]any{}
	if meta.Title != nil {
		fields["title"] = *meta.Title
	}
	if meta.AvatarURL != nil {
		avatar := a.promote(ctx, *meta.AvatarURL)
		meta.AvatarURL = &avatar
		fields["avatarUrl"] = avatar
		fields["settings.basic.thumbnailUrl"] = avatar
	}
	if meta.Description != nil {
		fields["description"] = *meta.Description
		fields["settings.basic.description"] = *meta.Description
	}
	if len(fields) == 0 {
		return meta, nil
	}
	return meta, a.upsert(ctx, roomPath(roomID), fields)
}
