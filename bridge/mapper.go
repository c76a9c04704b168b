package bridge

import (
	"time"

	"local/groupmebridge/utils"
)

const (
	MappingCacheSize = 1000
	MappingMaxAge    = 24 * time.Hour
)

// IdentityMapper keeps the bidirectional MessageLink association between
// Discord message ids and GroupMe message/poll ids. Re-linking an id silently
// overwrites (last-write-wins); lookups always return the single most recent
// counterpart. Entries age out after MappingMaxAge.
type IdentityMapper struct {
	discordToGroupMe *utils.BoundedMap
	groupmeToDiscord *utils.BoundedMap
	groupmeAuthors   *utils.BoundedMap // GroupMe message id -> author display name
}

func NewIdentityMapper() *IdentityMapper {
	return &IdentityMapper{
		discordToGroupMe: utils.NewBoundedMap(MappingCacheSize, MappingMaxAge),
		groupmeToDiscord: utils.NewBoundedMap(MappingCacheSize, MappingMaxAge),
		groupmeAuthors:   utils.NewBoundedMap(MappingCacheSize, MappingMaxAge),
	}
}

func (m *IdentityMapper) RecordLink(discordID, groupmeID string) {
	m.discordToGroupMe.Set(discordID, groupmeID)
	m.groupmeToDiscord.Set(groupmeID, discordID)
}

// Lookup resolves a native id on the given platform to its counterpart on the
// other platform.
func (m *IdentityMapper) Lookup(platform Platform, id string) (string, bool) {
	var v interface{}
	var ok bool
	switch platform {
	case PlatformDiscord:
		v, ok = m.discordToGroupMe.Get(id)
	case PlatformGroupMe:
		v, ok = m.groupmeToDiscord.Get(id)
	}
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (m *IdentityMapper) Unlink(discordID, groupmeID string) {
	m.discordToGroupMe.Delete(discordID)
	m.groupmeToDiscord.Delete(groupmeID)
	m.groupmeAuthors.Delete(groupmeID)
}

func (m *IdentityMapper) RecordAuthor(groupmeID, name string) {
	m.groupmeAuthors.Set(groupmeID, name)
}

func (m *IdentityMapper) Author(groupmeID string) (string, bool) {
	v, ok := m.groupmeAuthors.Get(groupmeID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (m *IdentityMapper) CleanupOldEntries() int {
	removed := 0
	removed += m.discordToGroupMe.CleanupOldEntries()
	removed += m.groupmeToDiscord.CleanupOldEntries()
	removed += m.groupmeAuthors.CleanupOldEntries()
	return removed
}

func (m *IdentityMapper) Len() int {
	return m.discordToGroupMe.Len()
}
