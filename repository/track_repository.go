package repository

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"Bt1QLooper/db"
	"Bt1QLooper/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(track *model.Track) (int64, error)
	GetTrackByID(id int64) (*model.Track, error)
	GetTracksByUserID(userID int64) ([]*model.Track, error)
	GetTracksByIDs(userID int64, ids []int64) ([]*model.Track, error)
	GetTrackByUserIDAndObjectKey(userID int64, objectKey string) (*model.Track, error)
	UpdateTrackParams(trackID int64, req *model.UpdateTrackRequest) error
	UpdateTrackDuration(trackID int64, durationMs float64, status string) error
	DeleteTrack(trackID int64) error
	NextPosition(userID int64) (int, error)
}

const trackColumns = `id, user_id, title, file_name, object_key, format, duration_ms, speed, volume, position, status, state, created_at, updated_at`

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

func scanTrack(scanner interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	err := scanner.Scan(&track.ID, &track.UserID, &track.Title, &track.FileName,
		&track.ObjectKey, &track.Format, &track.DurationMs, &track.Speed,
		&track.Volume, &track.Position, &track.Status, &track.State,
		&track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return track, nil
}

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (user_id, title, file_name, object_key, format, duration_ms, speed, volume, position, status, state, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(track.UserID, track.Title, track.FileName, track.ObjectKey,
		track.Format, track.DurationMs, track.Speed, track.Volume, track.Position,
		track.Status, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	log.Printf("Track created with ID: %d, Title: %s", id, track.Title)
	return id, nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ? AND state = 1`
	track, err := scanTrack(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetTracksByUserID retrieves the user's tracks in list order. The first
// row (lowest position) is the master track by convention.
func (r *mysqlTrackRepository) GetTracksByUserID(userID int64) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = ? AND state = 1 ORDER BY position ASC, id ASC`
	rows, err := r.DB.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetTracksByUserID: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetTracksByUserID: %w", err)
	}

	return tracks, nil
}

// GetTracksByIDs retrieves a subset of the user's tracks, preserving the
// order of the requested id list (the caller's mix order).
func (r *mysqlTrackRepository) GetTracksByIDs(userID int64, ids []int64) ([]*model.Track, error) {
	if len(ids) == 0 {
		return []*model.Track{}, nil
	}

	byID := make(map[int64]*model.Track, len(ids))
	for _, id := range ids {
		track, err := r.GetTrackByID(id)
		if err != nil {
			return nil, err
		}
		if track == nil || track.UserID != userID {
			return nil, fmt.Errorf("track %d not found for user %d", id, userID)
		}
		byID[id] = track
	}

	tracks := make([]*model.Track, 0, len(ids))
	for _, id := range ids {
		tracks = append(tracks, byID[id])
	}
	return tracks, nil
}

// GetTrackByUserIDAndObjectKey checks whether a source was already imported.
func (r *mysqlTrackRepository) GetTrackByUserIDAndObjectKey(userID int64, objectKey string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = ? AND object_key = ? AND state = 1`
	track, err := scanTrack(r.DB.QueryRow(query, userID, objectKey))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track by user ID %d and object key %s: %w", userID, objectKey, err)
	}
	return track, nil
}

// UpdateTrackParams applies the user's speed/volume/position/title edits.
// Nil fields keep their current values.
func (r *mysqlTrackRepository) UpdateTrackParams(trackID int64, req *model.UpdateTrackRequest) error {
	sets := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)

	if req.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *req.Title)
	}
	if req.Speed != nil {
		sets = append(sets, "speed = ?")
		args = append(args, *req.Speed)
	}
	if req.Volume != nil {
		sets = append(sets, "volume = ?")
		args = append(args, *req.Volume)
	}
	if req.Position != nil {
		sets = append(sets, "position = ?")
		args = append(args, *req.Position)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE tracks SET " + joinSets(sets) + ", updated_at = ? WHERE id = ?"
	args = append(args, time.Now(), trackID)

	_, err := r.DB.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateTrackParams for track ID %d: %w", trackID, err)
	}
	log.Printf("Track params updated for track ID: %d", trackID)
	return nil
}

// UpdateTrackDuration records the probed natural duration and processing
// status once the source has been analysed.
func (r *mysqlTrackRepository) UpdateTrackDuration(trackID int64, durationMs float64, status string) error {
	query := `UPDATE tracks SET duration_ms = ?, status = ?, updated_at = ? WHERE id = ?`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateTrackDuration: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(durationMs, status, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateTrackDuration for track ID %d: %w", trackID, err)
	}
	return nil
}

// DeleteTrack soft-deletes the track. Derived loop info of other tracks is
// the caller's concern; the timing calculator tolerates a missing master.
func (r *mysqlTrackRepository) DeleteTrack(trackID int64) error {
	query := `UPDATE tracks SET state = 0, updated_at = ? WHERE id = ?`
	_, err := r.DB.Exec(query, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to delete track ID %d: %w", trackID, err)
	}
	log.Printf("Track deleted with ID: %d", trackID)
	return nil
}

// NextPosition returns the next free list position for a user's new track.
func (r *mysqlTrackRepository) NextPosition(userID int64) (int, error) {
	var max sql.NullInt64
	err := r.DB.QueryRow(`SELECT MAX(position) FROM tracks WHERE user_id = ? AND state = 1`, userID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max position for user %d: %w", userID, err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
