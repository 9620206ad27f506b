// Package catalog is the durable relational record of artists, albums,
// releases, tracks, files, audio formats, storage profiles, and the
// pending-deletion queue.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, letting every query
// method below run either standalone or inside a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store holds the connection pool and implements the Catalog store.
type Store struct {
	pool *pgxpool.Pool
	db   dbtx // pool by default; a *Tx substitutes this inside WithTx
}

// Connect connects to Postgres using the given DSN and returns a Store.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{pool: pool}
	s.db = s.pool
	return s, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping checks that Postgres is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// WithTx runs fn against a Store backed by a single transaction, committing
// on success and rolling back on any error (including a panic, which is
// re-thrown after rollback). Spec §5: every multi-row mutation — artist
// merge + release insert + tracks + files + audio_format — is one
// transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	txStore := &Store{pool: s.pool, db: tx}
	if err = fn(txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Artists ---

// UpsertArtist inserts or updates an artist by ID.
func (s *Store) UpsertArtist(ctx context.Context, p UpsertArtistParams) (Artist, error) {
	var a Artist
	row := s.db.QueryRow(ctx, `INSERT INTO artists (id, name, sort_name, discogs_id, musicbrainz_id, bandcamp_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  sort_name = COALESCE(EXCLUDED.sort_name, artists.sort_name),
  discogs_id = COALESCE(artists.discogs_id, EXCLUDED.discogs_id),
  musicbrainz_id = COALESCE(artists.musicbrainz_id, EXCLUDED.musicbrainz_id),
  bandcamp_id = COALESCE(artists.bandcamp_id, EXCLUDED.bandcamp_id),
  updated_at = now()
RETURNING id, name, sort_name, discogs_id, musicbrainz_id, bandcamp_id, created_at, updated_at`,
		p.ID, p.Name, p.SortName, p.DiscogsID, p.MusicbrainzID, p.BandcampID)
	err := row.Scan(&a.ID, &a.Name, &a.SortName, &a.DiscogsID, &a.MusicbrainzID, &a.BandcampID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// FindArtistByExternalID looks up an artist by Discogs or MusicBrainz ID,
// in that precedence order, per the §4.7 merge rule.
func (s *Store) FindArtistByExternalID(ctx context.Context, discogsID, musicbrainzID *string) (*Artist, error) {
	if discogsID != nil {
		if a, err := s.scanArtistRow(s.db.QueryRow(ctx,
			`SELECT id, name, sort_name, discogs_id, musicbrainz_id, bandcamp_id, created_at, updated_at FROM artists WHERE discogs_id = $1`,
			*discogsID)); err == nil {
			return a, nil
		} else if err != pgx.ErrNoRows {
			return nil, err
		}
	}
	if musicbrainzID != nil {
		if a, err := s.scanArtistRow(s.db.QueryRow(ctx,
			`SELECT id, name, sort_name, discogs_id, musicbrainz_id, bandcamp_id, created_at, updated_at FROM artists WHERE musicbrainz_id = $1`,
			*musicbrainzID)); err == nil {
			return a, nil
		} else if err != pgx.ErrNoRows {
			return nil, err
		}
	}
	return nil, nil
}

// FindArtistByName looks up an artist by case-insensitive name match. The
// caller applies the "no conflicting external IDs" rule before treating
// this as a merge target.
func (s *Store) FindArtistByName(ctx context.Context, name string) (*Artist, error) {
	a, err := s.scanArtistRow(s.db.QueryRow(ctx,
		`SELECT id, name, sort_name, discogs_id, musicbrainz_id, bandcamp_id, created_at, updated_at FROM artists WHERE lower(name) = lower($1) LIMIT 1`,
		name))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *Store) scanArtistRow(row pgx.Row) (*Artist, error) {
	var a Artist
	if err := row.Scan(&a.ID, &a.Name, &a.SortName, &a.DiscogsID, &a.MusicbrainzID, &a.BandcampID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// --- Albums ---

// UpsertAlbum inserts or updates an album.
func (s *Store) UpsertAlbum(ctx context.Context, p UpsertAlbumParams) (Album, error) {
	var alb Album
	row := s.db.QueryRow(ctx, `INSERT INTO albums (id, title, year, is_compilation, discogs_master_id, discogs_release_id, mb_release_group_id, mb_release_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  year = COALESCE(EXCLUDED.year, albums.year),
  is_compilation = EXCLUDED.is_compilation,
  discogs_master_id = COALESCE(albums.discogs_master_id, EXCLUDED.discogs_master_id),
  discogs_release_id = COALESCE(albums.discogs_release_id, EXCLUDED.discogs_release_id),
  mb_release_group_id = COALESCE(albums.mb_release_group_id, EXCLUDED.mb_release_group_id),
  mb_release_id = COALESCE(albums.mb_release_id, EXCLUDED.mb_release_id),
  updated_at = now()
RETURNING id, title, year, is_compilation, discogs_master_id, discogs_release_id, mb_release_group_id, mb_release_id, cover_release_id, created_at, updated_at`,
		p.ID, p.Title, p.Year, p.IsCompilation, p.DiscogsMasterID, p.DiscogsReleaseID, p.MBReleaseGroupID, p.MBReleaseID)
	err := row.Scan(&alb.ID, &alb.Title, &alb.Year, &alb.IsCompilation, &alb.DiscogsMasterID, &alb.DiscogsReleaseID, &alb.MBReleaseGroupID, &alb.MBReleaseID, &alb.CoverReleaseID, &alb.CreatedAt, &alb.UpdatedAt)
	return alb, err
}

// SetAlbumCoverRelease updates cover_release_id only when a cover is
// actually materialized (§4.6 cover selection policy).
func (s *Store) SetAlbumCoverRelease(ctx context.Context, albumID, releaseID string) error {
	_, err := s.db.Exec(ctx, `UPDATE albums SET cover_release_id = $2, updated_at = now() WHERE id = $1`, albumID, releaseID)
	return err
}

// AddAlbumArtist links an album to an artist at an ordered position.
func (s *Store) AddAlbumArtist(ctx context.Context, p AlbumArtistParams) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO album_artists (album_id, artist_id, position) VALUES ($1, $2, $3)
ON CONFLICT (album_id, artist_id) DO UPDATE SET position = EXCLUDED.position`,
		p.AlbumID, p.ArtistID, p.Position)
	return err
}

// --- Releases ---

// InsertRelease inserts a new release row with import_status=Queued.
func (s *Store) InsertRelease(ctx context.Context, p InsertReleaseParams) (Release, error) {
	var r Release
	row := s.db.QueryRow(ctx, `INSERT INTO releases
(id, album_id, release_name, year, format, label, catalog_number, country, barcode, external_release_id, disc_id, private, import_status, storage_mode, storage_profile_id, unmanaged_path)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,'queued',$13,$14,$15)
RETURNING id, album_id, release_name, year, format, label, catalog_number, country, barcode, external_release_id, disc_id, private, import_status, storage_mode, storage_profile_id, unmanaged_path, created_at, updated_at`,
		p.ID, p.AlbumID, p.ReleaseName, p.Year, p.Format, p.Label, p.CatalogNumber, p.Country, p.Barcode, p.ExternalReleaseID, p.DiscID, p.Private, p.StorageMode, p.StorageProfileID, p.UnmanagedPath)
	err := scanRelease(row, &r)
	return r, err
}

// FindReleaseByExternalID supports the idempotency rule in §4.6: no
// duplicate releases for the same external_release_id.
func (s *Store) FindReleaseByExternalID(ctx context.Context, externalID string) (*Release, error) {
	var r Release
	row := s.db.QueryRow(ctx, `SELECT id, album_id, release_name, year, format, label, catalog_number, country, barcode, external_release_id, disc_id, private, import_status, storage_mode, storage_profile_id, unmanaged_path, created_at, updated_at FROM releases WHERE external_release_id = $1`, externalID)
	if err := scanRelease(row, &r); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// SetReleaseImportStatus advances import_status. Callers must never move it
// backward.
func (s *Store) SetReleaseImportStatus(ctx context.Context, releaseID string, status ImportStatus) error {
	_, err := s.db.Exec(ctx, `UPDATE releases SET import_status = $2, updated_at = now() WHERE id = $1`, releaseID, status)
	return err
}

// SetReleaseStorageMode flips storage_mode, used by the transfer/eject flow.
func (s *Store) SetReleaseStorageMode(ctx context.Context, releaseID string, mode StorageMode, profileID *string, unmanagedPath *string) error {
	_, err := s.db.Exec(ctx, `UPDATE releases SET storage_mode = $2, storage_profile_id = $3, unmanaged_path = $4, updated_at = now() WHERE id = $1`,
		releaseID, mode, profileID, unmanagedPath)
	return err
}

// GetRelease loads a release by ID.
func (s *Store) GetRelease(ctx context.Context, id string) (Release, error) {
	var r Release
	row := s.db.QueryRow(ctx, `SELECT id, album_id, release_name, year, format, label, catalog_number, country, barcode, external_release_id, disc_id, private, import_status, storage_mode, storage_profile_id, unmanaged_path, created_at, updated_at FROM releases WHERE id = $1`, id)
	err := scanRelease(row, &r)
	return r, err
}

// DeleteRelease removes a release and its dependent rows (tracks/files/
// audio_formats cascade). Callers are responsible for the storage-side
// deletion and for honoring the Unmanaged invariant (never touch disk).
func (s *Store) DeleteRelease(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM releases WHERE id = $1`, id)
	return err
}

func scanRelease(row pgx.Row, r *Release) error {
	return row.Scan(&r.ID, &r.AlbumID, &r.ReleaseName, &r.Year, &r.Format, &r.Label, &r.CatalogNumber, &r.Country, &r.Barcode, &r.ExternalReleaseID, &r.DiscID, &r.Private, &r.ImportStatus, &r.StorageMode, &r.StorageProfileID, &r.UnmanagedPath, &r.CreatedAt, &r.UpdatedAt)
}

// --- Tracks ---

// InsertTrack inserts a new track row.
func (s *Store) InsertTrack(ctx context.Context, p InsertTrackParams) (Track, error) {
	var t Track
	row := s.db.QueryRow(ctx, `INSERT INTO tracks (id, release_id, title, disc_number, track_number, duration_ms, source_position, import_status)
VALUES ($1,$2,$3,$4,$5,$6,$7,'queued')
RETURNING id, release_id, title, disc_number, track_number, duration_ms, source_position, import_status, created_at, updated_at`,
		p.ID, p.ReleaseID, p.Title, p.DiscNumber, p.TrackNumber, p.DurationMs, p.SourcePosition)
	err := scanTrack(row, &t)
	return t, err
}

// SetTrackDurationMs backfills duration once the FLAC analyzer/track mapper
// has computed it (§4.6 step "ExtractingDurations").
func (s *Store) SetTrackDurationMs(ctx context.Context, trackID string, durationMs int) error {
	_, err := s.db.Exec(ctx, `UPDATE tracks SET duration_ms = $2, updated_at = now() WHERE id = $1`, trackID, durationMs)
	return err
}

// SetTrackImportStatus advances a track's import_status.
func (s *Store) SetTrackImportStatus(ctx context.Context, trackID string, status ImportStatus) error {
	_, err := s.db.Exec(ctx, `UPDATE tracks SET import_status = $2, updated_at = now() WHERE id = $1`, trackID, status)
	return err
}

// GetTrack loads a track by ID.
func (s *Store) GetTrack(ctx context.Context, id string) (Track, error) {
	var t Track
	row := s.db.QueryRow(ctx, `SELECT id, release_id, title, disc_number, track_number, duration_ms, source_position, import_status, created_at, updated_at FROM tracks WHERE id = $1`, id)
	err := scanTrack(row, &t)
	return t, err
}

// ListTracksByRelease returns a release's tracks ordered by (disc, track).
func (s *Store) ListTracksByRelease(ctx context.Context, releaseID string) ([]Track, error) {
	rows, err := s.db.Query(ctx, `SELECT id, release_id, title, disc_number, track_number, duration_ms, source_position, import_status, created_at, updated_at
FROM tracks WHERE release_id = $1 ORDER BY disc_number NULLS FIRST, track_number NULLS FIRST`, releaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Track
	for rows.Next() {
		var t Track
		if err := scanTrack(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrack(row interface {
	Scan(dest ...any) error
}, t *Track) error {
	return row.Scan(&t.ID, &t.ReleaseID, &t.Title, &t.DiscNumber, &t.TrackNumber, &t.DurationMs, &t.SourcePosition, &t.ImportStatus, &t.CreatedAt, &t.UpdatedAt)
}

// AddTrackArtist links a track to an artist, optionally with a role.
func (s *Store) AddTrackArtist(ctx context.Context, p TrackArtistParams) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO track_artists (track_id, artist_id, position, role) VALUES ($1,$2,$3,$4)
ON CONFLICT (track_id, artist_id) DO UPDATE SET position = EXCLUDED.position, role = EXCLUDED.role`,
		p.TrackID, p.ArtistID, p.Position, p.Role)
	return err
}

// --- Files ---

// InsertFile inserts a new file row.
func (s *Store) InsertFile(ctx context.Context, p InsertFileParams) (File, error) {
	var f File
	row := s.db.QueryRow(ctx, `INSERT INTO files (id, release_id, original_filename, file_size, content_type, encryption_nonce, encryption_scheme)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id, release_id, original_filename, file_size, content_type, encryption_nonce, encryption_scheme, created_at, updated_at`,
		p.ID, p.ReleaseID, p.OriginalFilename, p.FileSize, p.ContentType, p.EncryptionNonce, p.EncryptionScheme)
	err := row.Scan(&f.ID, &f.ReleaseID, &f.OriginalFilename, &f.FileSize, &f.ContentType, &f.EncryptionNonce, &f.EncryptionScheme, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

// SetFileEncryption records the nonce and scheme a file was actually
// sealed under once the storage service has written its bytes — the file
// row is inserted before that write happens (SavingToDatabase precedes
// Store in the import pipeline), so this is a follow-up update rather than
// part of InsertFile.
func (s *Store) SetFileEncryption(ctx context.Context, fileID string, nonce []byte, scheme EncryptionScheme) error {
	_, err := s.db.Exec(ctx, `UPDATE files SET encryption_nonce = $2, encryption_scheme = $3, updated_at = now() WHERE id = $1`, fileID, nonce, scheme)
	return err
}

// GetFile loads a file by ID.
func (s *Store) GetFile(ctx context.Context, id string) (File, error) {
	var f File
	row := s.db.QueryRow(ctx, `SELECT id, release_id, original_filename, file_size, content_type, encryption_nonce, encryption_scheme, created_at, updated_at FROM files WHERE id = $1`, id)
	err := row.Scan(&f.ID, &f.ReleaseID, &f.OriginalFilename, &f.FileSize, &f.ContentType, &f.EncryptionNonce, &f.EncryptionScheme, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

// ListFilesByRelease returns every file belonging to a release, used by
// delete/transfer/eject.
func (s *Store) ListFilesByRelease(ctx context.Context, releaseID string) ([]File, error) {
	rows, err := s.db.Query(ctx, `SELECT id, release_id, original_filename, file_size, content_type, encryption_nonce, encryption_scheme, created_at, updated_at FROM files WHERE release_id = $1`, releaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.ReleaseID, &f.OriginalFilename, &f.FileSize, &f.ContentType, &f.EncryptionNonce, &f.EncryptionScheme, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- Audio formats ---

// UpsertAudioFormat upserts the 1:1 playback plan for a track.
func (s *Store) UpsertAudioFormat(ctx context.Context, p UpsertAudioFormatParams) error {
	seekJSON, err := json.Marshal(p.Seektable)
	if err != nil {
		return fmt.Errorf("marshal seektable: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO audio_formats
(track_id, file_id, content_type, flac_headers, needs_headers, start_byte_offset, end_byte_offset, pregap_ms, frame_offset_samples, exact_sample_count, sample_rate, bits_per_sample, audio_data_start, seektable)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (track_id) DO UPDATE SET
  file_id = EXCLUDED.file_id, content_type = EXCLUDED.content_type, flac_headers = EXCLUDED.flac_headers,
  needs_headers = EXCLUDED.needs_headers, start_byte_offset = EXCLUDED.start_byte_offset, end_byte_offset = EXCLUDED.end_byte_offset,
  pregap_ms = EXCLUDED.pregap_ms, frame_offset_samples = EXCLUDED.frame_offset_samples, exact_sample_count = EXCLUDED.exact_sample_count,
  sample_rate = EXCLUDED.sample_rate, bits_per_sample = EXCLUDED.bits_per_sample, audio_data_start = EXCLUDED.audio_data_start, seektable = EXCLUDED.seektable`,
		p.TrackID, p.FileID, p.ContentType, p.FLACHeaders, p.NeedsHeaders, p.StartByteOffset, p.EndByteOffset, p.PregapMs, p.FrameOffsetSamples, p.ExactSampleCount, p.SampleRate, p.BitsPerSample, p.AudioDataStart, seekJSON)
	return err
}

// GetAudioFormat loads the playback plan for a track.
func (s *Store) GetAudioFormat(ctx context.Context, trackID string) (AudioFormat, error) {
	var af AudioFormat
	var seekJSON []byte
	row := s.db.QueryRow(ctx, `SELECT track_id, file_id, content_type, flac_headers, needs_headers, start_byte_offset, end_byte_offset, pregap_ms, frame_offset_samples, exact_sample_count, sample_rate, bits_per_sample, audio_data_start, seektable FROM audio_formats WHERE track_id = $1`, trackID)
	if err := row.Scan(&af.TrackID, &af.FileID, &af.ContentType, &af.FLACHeaders, &af.NeedsHeaders, &af.StartByteOffset, &af.EndByteOffset, &af.PregapMs, &af.FrameOffsetSamples, &af.ExactSampleCount, &af.SampleRate, &af.BitsPerSample, &af.AudioDataStart, &seekJSON); err != nil {
		return af, err
	}
	if len(seekJSON) > 0 {
		if err := json.Unmarshal(seekJSON, &af.Seektable); err != nil {
			return af, fmt.Errorf("unmarshal seektable: %w", err)
		}
	}
	return af, nil
}

// --- Library images ---

// UpsertLibraryImage upserts a cover or artist image row.
func (s *Store) UpsertLibraryImage(ctx context.Context, p UpsertLibraryImageParams) error {
	_, err := s.db.Exec(ctx, `INSERT INTO library_images (id, image_type, content_type, file_size, width, height, source, source_url)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id, image_type) DO UPDATE SET content_type = EXCLUDED.content_type, file_size = EXCLUDED.file_size, width = EXCLUDED.width, height = EXCLUDED.height, source = EXCLUDED.source, source_url = EXCLUDED.source_url`,
		p.ID, p.ImageType, p.ContentType, p.FileSize, p.Width, p.Height, p.Source, p.SourceURL)
	return err
}

// --- Storage profiles ---

// UpsertStorageProfile upserts a storage profile.
func (s *Store) UpsertStorageProfile(ctx context.Context, p UpsertStorageProfileParams) (StorageProfile, error) {
	var sp StorageProfile
	row := s.db.QueryRow(ctx, `INSERT INTO storage_profiles (id, name, kind, path, bucket, region, endpoint, encrypted, is_default)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, kind = EXCLUDED.kind, path = EXCLUDED.path, bucket = EXCLUDED.bucket, region = EXCLUDED.region, endpoint = EXCLUDED.endpoint, encrypted = EXCLUDED.encrypted, is_default = EXCLUDED.is_default
RETURNING id, name, kind, path, bucket, region, endpoint, encrypted, is_default, created_at`,
		p.ID, p.Name, p.Kind, p.Path, p.Bucket, p.Region, p.Endpoint, p.Encrypted, p.IsDefault)
	err := row.Scan(&sp.ID, &sp.Name, &sp.Kind, &sp.Path, &sp.Bucket, &sp.Region, &sp.Endpoint, &sp.Encrypted, &sp.IsDefault, &sp.CreatedAt)
	return sp, err
}

// GetDefaultStorageProfile returns the profile marked is_default.
func (s *Store) GetDefaultStorageProfile(ctx context.Context) (StorageProfile, error) {
	var sp StorageProfile
	row := s.db.QueryRow(ctx, `SELECT id, name, kind, path, bucket, region, endpoint, encrypted, is_default, created_at FROM storage_profiles WHERE is_default LIMIT 1`)
	err := row.Scan(&sp.ID, &sp.Name, &sp.Kind, &sp.Path, &sp.Bucket, &sp.Region, &sp.Endpoint, &sp.Encrypted, &sp.IsDefault, &sp.CreatedAt)
	return sp, err
}

// GetStorageProfile loads a storage profile by ID.
func (s *Store) GetStorageProfile(ctx context.Context, id string) (StorageProfile, error) {
	var sp StorageProfile
	row := s.db.QueryRow(ctx, `SELECT id, name, kind, path, bucket, region, endpoint, encrypted, is_default, created_at FROM storage_profiles WHERE id = $1`, id)
	err := row.Scan(&sp.ID, &sp.Name, &sp.Kind, &sp.Path, &sp.Bucket, &sp.Region, &sp.Endpoint, &sp.Encrypted, &sp.IsDefault, &sp.CreatedAt)
	return sp, err
}

// --- Import operations ---

// InsertImportOperation records the start of an import attempt.
func (s *Store) InsertImportOperation(ctx context.Context, p InsertImportOperationParams) (ImportOperation, error) {
	var op ImportOperation
	row := s.db.QueryRow(ctx, `INSERT INTO import_operations (id, album_title, artist_name, folder_path, status) VALUES ($1,$2,$3,$4,'preparing')
RETURNING id, album_title, artist_name, folder_path, status, release_id, error_message, created_at, updated_at`,
		p.ID, p.AlbumTitle, p.ArtistName, p.FolderPath)
	err := scanImportOperation(row, &op)
	return op, err
}

// SetImportOperationStatus updates an import operation's status and,
// optionally, its resulting release ID or error message.
func (s *Store) SetImportOperationStatus(ctx context.Context, id string, status ImportOperationStatus, releaseID, errMsg *string) error {
	_, err := s.db.Exec(ctx, `UPDATE import_operations SET status = $2, release_id = COALESCE($3, release_id), error_message = $4, updated_at = now() WHERE id = $1`,
		id, status, releaseID, errMsg)
	return err
}

func scanImportOperation(row pgx.Row, op *ImportOperation) error {
	return row.Scan(&op.ID, &op.AlbumTitle, &op.ArtistName, &op.FolderPath, &op.Status, &op.ReleaseID, &op.ErrorMessage, &op.CreatedAt, &op.UpdatedAt)
}

// --- Pending deletions ---

// EnqueuePendingDeletion appends one entry to the pending-deletion WAL.
func (s *Store) EnqueuePendingDeletion(ctx context.Context, p EnqueuePendingDeletionParams) error {
	_, err := s.db.Exec(ctx, `INSERT INTO pending_deletions (id, profile_id, key) VALUES ($1,$2,$3)`, p.ID, p.ProfileID, p.Key)
	return err
}

// LeasePendingDeletions atomically leases up to limit ready entries (past
// their grace period, not currently leased) for `leaseDuration`, so
// concurrent sweepers never double-delete. Uses FOR UPDATE SKIP LOCKED —
// the same short-lease-per-entry pattern the pending-deletion sweep needs,
// grounded on the leased-sweep shape of a work queue.
func (s *Store) LeasePendingDeletions(ctx context.Context, graceDuration, leaseDuration time.Duration, limit int) ([]PendingDeletion, error) {
	rows, err := s.db.Query(ctx, `
WITH ready AS (
  SELECT id FROM pending_deletions
  WHERE scheduled_at <= now() - $1::interval
    AND (leased_until IS NULL OR leased_until < now())
  ORDER BY scheduled_at
  LIMIT $3
  FOR UPDATE SKIP LOCKED
)
UPDATE pending_deletions p SET leased_until = now() + $2::interval
FROM ready WHERE p.id = ready.id
RETURNING p.id, p.profile_id, p.key, p.scheduled_at, p.leased_until`,
		graceDuration.String(), leaseDuration.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingDeletion
	for rows.Next() {
		var d PendingDeletion
		if err := rows.Scan(&d.ID, &d.ProfileID, &d.Key, &d.ScheduledAt, &d.LeasedUntil); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeletePendingDeletion removes a completed entry from the WAL.
func (s *Store) DeletePendingDeletion(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM pending_deletions WHERE id = $1`, id)
	return err
}
