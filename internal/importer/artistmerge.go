package importer

import (
	"context"

	"github.com/baebaebaebaebae/bae-core/internal/catalog"
)

// ArtistInput is one incoming artist credit from parsed metadata, prior to
// knowing which catalog row (if any) it merges into.
type ArtistInput struct {
	Name          string
	SortName      *string
	DiscogsID     *string
	MusicbrainzID *string
	BandcampID    *string
}

// artistLookup is the subset of *catalog.Store the merge rule needs. Kept
// narrow so the decision logic is testable without a live database — the
// teacher's own cmd/ingest.go upserts directly against *store.Store and
// never isolates this decision, but spec.md §4.7's precedence chain
// (Discogs ID -> MusicBrainz ID -> conflict-free name match) is involved
// enough to warrant its own tested unit.
type artistLookup interface {
	FindArtistByExternalID(ctx context.Context, discogsID, musicbrainzID *string) (*catalog.Artist, error)
	FindArtistByName(ctx context.Context, name string) (*catalog.Artist, error)
}

// ResolveArtistID applies spec.md §4.7's merge rule to decide which ID
// incoming should be upserted under: an existing artist's ID if one of the
// three lookups finds a non-conflicting match, a freshly minted ID
// otherwise. The actual field-level coalescing (existing row absorbs any
// new external IDs) happens in catalog.Store.UpsertArtist's own
// ON CONFLICT clause once the caller upserts under the returned ID.
func ResolveArtistID(ctx context.Context, lookup artistLookup, incoming ArtistInput, newID func() string) (string, error) {
	byExternal, err := lookup.FindArtistByExternalID(ctx, incoming.DiscogsID, incoming.MusicbrainzID)
	if err != nil {
		return "", err
	}
	if byExternal != nil {
		return byExternal.ID, nil
	}

	byName, err := lookup.FindArtistByName(ctx, incoming.Name)
	if err != nil {
		return "", err
	}
	if byName != nil && !conflictingExternalIDs(byName, incoming) {
		return byName.ID, nil
	}

	return newID(), nil
}

// conflictingExternalIDs reports whether existing and incoming both carry a
// value for the same external-ID field and those values differ — spec.md
// §4.7's definition of "conflict", which disqualifies an otherwise
// matching name from being treated as a merge target.
func conflictingExternalIDs(existing *catalog.Artist, incoming ArtistInput) bool {
	return fieldConflicts(existing.DiscogsID, incoming.DiscogsID) ||
		fieldConflicts(existing.MusicbrainzID, incoming.MusicbrainzID) ||
		fieldConflicts(existing.BandcampID, incoming.BandcampID)
}

func fieldConflicts(existing, incoming *string) bool {
	return existing != nil && incoming != nil && *existing != *incoming
}
