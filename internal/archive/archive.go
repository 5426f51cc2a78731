// Package archive stores a JSON snapshot of every finished tournament in an
// S3 compatible bucket (Cloudflare R2 in production).
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

type Uploader interface {
	Upload(ctx context.Context, key string, contentType string, body io.Reader) error
}

type Archiver struct {
	uploader Uploader
	prefix   string
	now      func() time.Time
}

func New(uploader Uploader) *Archiver {
	return &Archiver{uploader: uploader, prefix: "tournaments/", now: time.Now}
}

type envelope struct {
	TournamentID uuid.UUID `json:"tournamentId"`
	ArchivedAt   time.Time `json:"archivedAt"`
	Snapshot     any       `json:"snapshot"`
}

func Key(prefix string, tournamentID uuid.UUID) string {
	return prefix + tournamentID.String() + ".json"
}

// ArchiveTournament uploads snapshot under tournaments/<id>.json, replacing any
// earlier snapshot of the same tournament.
func (a *Archiver) ArchiveTournament(ctx context.Context, tournamentID uuid.UUID, snapshot any) error {
	body, err := json.Marshal(envelope{
		TournamentID: tournamentID,
		ArchivedAt:   a.now().UTC(),
		Snapshot:     snapshot,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot of tournament %s: %w", tournamentID, err)
	}
	return a.uploader.Upload(ctx, Key(a.prefix, tournamentID), "application/json", bytes.NewReader(body))
}
