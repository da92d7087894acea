package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jmylchreest/mediarr/internal/authz"
	"github.com/jmylchreest/mediarr/internal/models"
	"github.com/jmylchreest/mediarr/internal/storage"
)

// Every write follows the same sequence: capability check, validation,
// mutation, eviction. Nothing is mutated until validation has passed, and
// once a mutation has started the eviction runs even if a later step fails.

// CreateMediaInput describes a new media title.
type CreateMediaInput struct {
	Name     string
	Type     models.MediaType
	Year     int
	Plot     string
	Trailer  string
	GenreIDs []models.ULID
	ActorIDs []models.ULID
	Videos   []models.Video

	// ThumbnailFilename is the uploaded file name, used for the extension check.
	ThumbnailFilename string
	Thumbnail         io.Reader
}

// UpdateMediaInput is a partial update. Nil fields are left unchanged; a
// non-nil empty GenreIDs or ActorIDs clears the links.
type UpdateMediaInput struct {
	Type       *models.MediaType
	Year       *int
	Plot       *string
	Trailer    *string
	GenreIDs   []models.ULID
	ActorIDs   []models.ULID
	VideoOrder []models.VideoOrder

	ThumbnailFilename string
	Thumbnail         io.Reader
}

// ReviewInput is the body of a new review.
type ReviewInput struct {
	Title   string
	Comment string
}

// ReviewPatch is a partial review update.
type ReviewPatch struct {
	Title   *string
	Comment *string
}

// CreateMedia validates and stores a new media title with its thumbnail.
func (s *CatalogService) CreateMedia(ctx context.Context, p Principal, in CreateMediaInput) (*models.MediaSummary, error) {
	if err := s.authz.Check(p.Roles, authz.ActionManageCatalog); err != nil {
		return nil, err
	}

	if in.Thumbnail == nil {
		return nil, models.ErrValidation{Field: "thumbnail", Message: "thumbnail is required"}
	}
	if err := storage.ValidateThumbnailFilename(in.ThumbnailFilename); err != nil {
		return nil, err
	}

	media := &models.Media{
		Name:    in.Name,
		Type:    in.Type,
		Year:    in.Year,
		Plot:    in.Plot,
		Trailer: in.Trailer,
		Videos:  in.Videos,
	}
	if err := media.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repos.Media.GetByName(ctx, media.Name)
	if err != nil {
		return nil, upstream("checking media name", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: media %q already exists", models.ErrConflict, media.Name)
	}

	if media.Genres, err = s.resolveGenres(ctx, in.GenreIDs); err != nil {
		return nil, err
	}
	if media.Actors, err = s.resolveActors(ctx, in.ActorIDs); err != nil {
		return nil, err
	}
	media.Thumbnail = media.ThumbnailName()

	if err := s.persistCreate(ctx, media, in.Thumbnail); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "media created",
		slog.String("media_id", media.ID.String()),
		slog.String("name", media.Name),
	)
	summary := models.Summarize(media, true)
	return &summary, nil
}

func (s *CatalogService) persistCreate(ctx context.Context, media *models.Media, thumbnail io.Reader) error {
	if err := s.repos.Media.Create(ctx, media); err != nil {
		return upstream("creating media", err)
	}
	defer s.invalidate(ctx, createScope())

	if _, err := s.thumbs.Save(ctx, media.Thumbnail, thumbnail); err != nil {
		if delErr := s.repos.Media.Delete(ctx, media.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to roll back media after thumbnail failure",
				slog.String("media_id", media.ID.String()),
				slog.String("error", delErr.Error()),
			)
		}
		return fmt.Errorf("storing thumbnail: %w", err)
	}
	return nil
}

// UpdateMedia applies a partial update and returns the refreshed summary.
func (s *CatalogService) UpdateMedia(ctx context.Context, p Principal, id models.ULID, in UpdateMediaInput) (*models.MediaSummary, error) {
	if err := s.authz.Check(p.Roles, authz.ActionManageCatalog); err != nil {
		return nil, err
	}

	media, err := s.requireMedia(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Type != nil {
		media.Type = *in.Type
	}
	if in.Year != nil {
		media.Year = *in.Year
	}
	if in.Plot != nil {
		media.Plot = *in.Plot
	}
	if in.Trailer != nil {
		media.Trailer = *in.Trailer
	}
	if err := media.Validate(); err != nil {
		return nil, err
	}

	var genreIDs, actorIDs []models.ULID
	if in.GenreIDs != nil {
		genres, err := s.resolveGenres(ctx, in.GenreIDs)
		if err != nil {
			return nil, err
		}
		genreIDs = idsOf(genres, func(g models.Genre) models.ULID { return g.ID })
	}
	if in.ActorIDs != nil {
		actors, err := s.resolveActors(ctx, in.ActorIDs)
		if err != nil {
			return nil, err
		}
		actorIDs = idsOf(actors, func(a models.Actor) models.ULID { return a.ID })
	}
	if err := checkVideoOrder(media, in.VideoOrder); err != nil {
		return nil, err
	}

	var oldThumbnail string
	if in.Thumbnail != nil {
		if err := storage.ValidateThumbnailFilename(in.ThumbnailFilename); err != nil {
			return nil, err
		}
		oldThumbnail = media.Thumbnail
		media.Thumbnail = media.ThumbnailName()
	}

	err = s.persistUpdate(ctx, media, in, genreIDs, actorIDs)
	if err != nil {
		return nil, err
	}
	if oldThumbnail != "" && oldThumbnail != media.Thumbnail {
		if err := s.thumbs.Delete(oldThumbnail); err != nil {
			s.logger.WarnContext(ctx, "failed to remove replaced thumbnail",
				slog.String("name", oldThumbnail),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "media updated", slog.String("media_id", id.String()))
	return s.GetMedia(ctx, id)
}

func (s *CatalogService) persistUpdate(ctx context.Context, media *models.Media, in UpdateMediaInput, genreIDs, actorIDs []models.ULID) error {
	defer s.invalidate(ctx, updateScope(media.ID))

	if err := s.repos.Media.Update(ctx, media); err != nil {
		return upstream("updating media", err)
	}
	if in.GenreIDs != nil {
		if err := s.repos.Media.ReplaceGenres(ctx, media.ID, genreIDs); err != nil {
			return upstream("replacing genres", err)
		}
	}
	if in.ActorIDs != nil {
		if err := s.repos.Media.ReplaceActors(ctx, media.ID, actorIDs); err != nil {
			return upstream("replacing actors", err)
		}
	}
	if len(in.VideoOrder) > 0 {
		if err := s.repos.Videos.UpdateOrder(ctx, media.ID, in.VideoOrder); err != nil {
			return upstream("reordering videos", err)
		}
	}
	if in.Thumbnail != nil {
		if _, err := s.thumbs.Save(ctx, media.Thumbnail, in.Thumbnail); err != nil {
			return fmt.Errorf("storing thumbnail: %w", err)
		}
	}
	return nil
}

// DeleteMedia removes a media title and everything attached to it.
func (s *CatalogService) DeleteMedia(ctx context.Context, p Principal, id models.ULID) error {
	if err := s.authz.Check(p.Roles, authz.ActionManageCatalog); err != nil {
		return err
	}

	media, err := s.requireMedia(ctx, id)
	if err != nil {
		return err
	}

	if err := s.persistDelete(ctx, id); err != nil {
		return err
	}
	if err := s.thumbs.Delete(media.Thumbnail); err != nil {
		s.logger.WarnContext(ctx, "failed to remove thumbnail of deleted media",
			slog.String("name", media.Thumbnail),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "media deleted", slog.String("media_id", id.String()))
	return nil
}

func (s *CatalogService) persistDelete(ctx context.Context, id models.ULID) error {
	defer s.invalidate(ctx, deleteScope(id))
	if err := s.repos.Media.Delete(ctx, id); err != nil {
		return upstream("deleting media", err)
	}
	return nil
}

// PostRating creates or replaces the caller's rating of a media.
func (s *CatalogService) PostRating(ctx context.Context, p Principal, mediaID models.ULID, score int) (*models.Rating, error) {
	if err := s.authz.Check(p.Roles, authz.ActionPostRating); err != nil {
		return nil, err
	}

	rating := &models.Rating{UserID: p.UserID, MediaID: mediaID, Score: score}
	if err := rating.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, p.UserID); err != nil {
		return nil, err
	}
	if _, err := s.requireMedia(ctx, mediaID); err != nil {
		return nil, err
	}

	if err := s.persistFeedback(ctx, mediaID, func() error {
		return s.repos.Ratings.Upsert(ctx, rating)
	}); err != nil {
		return nil, upstream("saving rating", err)
	}
	return rating, nil
}

// PostReview stores a new review written by the caller.
func (s *CatalogService) PostReview(ctx context.Context, p Principal, mediaID models.ULID, in ReviewInput) (*models.Review, error) {
	if err := s.authz.Check(p.Roles, authz.ActionWriteReview); err != nil {
		return nil, err
	}

	review := &models.Review{UserID: p.UserID, MediaID: mediaID, Title: in.Title, Comment: in.Comment}
	if err := review.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, p.UserID); err != nil {
		return nil, err
	}
	if _, err := s.requireMedia(ctx, mediaID); err != nil {
		return nil, err
	}

	if err := s.persistFeedback(ctx, mediaID, func() error {
		return s.repos.Reviews.Create(ctx, review)
	}); err != nil {
		return nil, upstream("saving review", err)
	}
	return review, nil
}

// UpdateReview edits a review. Only its author may edit it.
func (s *CatalogService) UpdateReview(ctx context.Context, p Principal, reviewID models.ULID, in ReviewPatch) (*models.Review, error) {
	if err := s.authz.Check(p.Roles, authz.ActionWriteReview); err != nil {
		return nil, err
	}

	review, err := s.requireReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.UserID != p.UserID {
		return nil, fmt.Errorf("%w: only the author may edit review %s", models.ErrForbidden, reviewID)
	}

	if in.Title != nil {
		review.Title = *in.Title
	}
	if in.Comment != nil {
		review.Comment = *in.Comment
	}
	if err := review.Validate(); err != nil {
		return nil, err
	}

	if err := s.persistFeedback(ctx, review.MediaID, func() error {
		return s.repos.Reviews.Update(ctx, review)
	}); err != nil {
		return nil, upstream("updating review", err)
	}
	return review, nil
}

// DeleteReview removes a review. Authors may delete their own reviews;
// moderators may delete any.
func (s *CatalogService) DeleteReview(ctx context.Context, p Principal, reviewID models.ULID) error {
	if err := s.authz.Check(p.Roles, authz.ActionWriteReview); err != nil {
		return err
	}

	review, err := s.requireReview(ctx, reviewID)
	if err != nil {
		return err
	}
	if review.UserID != p.UserID && !s.authz.Can(p.Roles, authz.ActionModerateReview) {
		return fmt.Errorf("%w: only the author or a moderator may delete review %s", models.ErrForbidden, reviewID)
	}

	if err := s.persistFeedback(ctx, review.MediaID, func() error {
		return s.repos.Reviews.Delete(ctx, reviewID)
	}); err != nil {
		return upstream("deleting review", err)
	}
	return nil
}

func (s *CatalogService) persistFeedback(ctx context.Context, mediaID models.ULID, mutate func() error) error {
	defer s.invalidate(ctx, feedbackScope(mediaID))
	return mutate()
}

// RecordWatch stores a playback report for the caller. The watch-derived
// rankings are not evicted here; they are flushed by FlushWatchViews.
func (s *CatalogService) RecordWatch(ctx context.Context, p Principal, videoID models.ULID, timestamp int64) (*models.WatchEvent, error) {
	if err := s.authz.Check(p.Roles, authz.ActionRecordWatch); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, p.UserID); err != nil {
		return nil, err
	}

	event, err := s.watch.Record(ctx, p.UserID, videoID, timestamp)
	if err != nil {
		return nil, err
	}
	s.watchDirty.Store(true)
	return event, nil
}

func (s *CatalogService) requireUser(ctx context.Context, id models.ULID) error {
	if id.IsZero() {
		return models.ErrUserIDRequired
	}
	user, err := s.repos.Users.GetByID(ctx, id)
	if err != nil {
		return upstream("loading user", err)
	}
	if user == nil {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	}
	return nil
}

func (s *CatalogService) requireReview(ctx context.Context, id models.ULID) (*models.Review, error) {
	review, err := s.repos.Reviews.GetByID(ctx, id)
	if err != nil {
		return nil, upstream("loading review", err)
	}
	if review == nil {
		return nil, fmt.Errorf("%w: review %s", models.ErrNotFound, id)
	}
	return review, nil
}

// resolveGenres loads the genres named by ids. Any unknown id is a conflict.
func (s *CatalogService) resolveGenres(ctx context.Context, ids []models.ULID) ([]models.Genre, error) {
	ids = models.UniqueULIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.repos.Genres.GetByIDs(ctx, ids)
	if err != nil {
		return nil, upstream("resolving genres", err)
	}
	if missing := missingIDs(ids, found, func(g *models.Genre) models.ULID { return g.ID }); len(missing) > 0 {
		return nil, fmt.Errorf("%w: unknown genres %s", models.ErrConflict, joinIDs(missing))
	}
	out := make([]models.Genre, len(found))
	for i, g := range found {
		out[i] = *g
	}
	return out, nil
}

// resolveActors loads the actors named by ids. Any unknown id is a conflict.
func (s *CatalogService) resolveActors(ctx context.Context, ids []models.ULID) ([]models.Actor, error) {
	ids = models.UniqueULIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.repos.Actors.GetByIDs(ctx, ids)
	if err != nil {
		return nil, upstream("resolving actors", err)
	}
	if missing := missingIDs(ids, found, func(a *models.Actor) models.ULID { return a.ID }); len(missing) > 0 {
		return nil, fmt.Errorf("%w: unknown actors %s", models.ErrConflict, joinIDs(missing))
	}
	out := make([]models.Actor, len(found))
	for i, a := range found {
		out[i] = *a
	}
	return out, nil
}

// checkVideoOrder rejects entries that name videos of another media.
func checkVideoOrder(media *models.Media, order []models.VideoOrder) error {
	owned := make(map[models.ULID]struct{}, len(media.Videos))
	for _, v := range media.Videos {
		owned[v.ID] = struct{}{}
	}
	for _, o := range order {
		if _, ok := owned[o.VideoID]; !ok {
			return fmt.Errorf("%w: video %s does not belong to media %s", models.ErrConflict, o.VideoID, media.ID)
		}
		if o.Index < 0 {
			return models.ErrValidation{Field: "index", Message: "must be non-negative"}
		}
	}
	return nil
}

func missingIDs[T any](want []models.ULID, found []T, id func(T) models.ULID) []models.ULID {
	have := make(map[models.ULID]struct{}, len(found))
	for _, f := range found {
		have[id(f)] = struct{}{}
	}
	var missing []models.ULID
	for _, w := range want {
		if _, ok := have[w]; !ok {
			missing = append(missing, w)
		}
	}
	return missing
}

func idsOf[T any](items []T, id func(T) models.ULID) []models.ULID {
	out := make([]models.ULID, len(items))
	for i, item := range items {
		out[i] = id(item)
	}
	return out
}

func joinIDs(ids []models.ULID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
