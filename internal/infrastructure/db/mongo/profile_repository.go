package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ovialab/admin-portal/internal/core/domain"
)

const profileCollection = "user_profiles"

type ProfileRepository struct {
	coll *mongo.Collection
}

func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{coll: db.Collection(profileCollection)}
}

// mongoProfile mirrors the stored document. last_force_logout_at is a bson
// datetime (millisecond precision, same as the feed-published value); the
// zero time means the user has never been forced out.
type mongoProfile struct {
	ID                string    `bson:"_id"`
	Role              string    `bson:"role"`
	LastForceLogoutAt time.Time `bson:"last_force_logout_at,omitempty"`
}

func (r *ProfileRepository) FindByID(ctx context.Context, userID string) (*domain.Profile, error) {
	var mp mongoProfile
	if err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&mp); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}

	profile := &domain.Profile{
		ID:   mp.ID,
		Role: mp.Role,
	}
	if !mp.LastForceLogoutAt.IsZero() {
		at := mp.LastForceLogoutAt.UTC()
		profile.LastForceLogoutAt = &at
	}
	return profile, nil
}

// ForceLogout stamps the profile with the administrator's invalidation time.
// The marker is never cleared; stale sessions are detected lazily by
// comparing it against the session's login time. Sub-second precision must
// survive the round trip: a forced logout issued within the same second as
// the login still has to compare strictly newer.
func (r *ProfileRepository) ForceLogout(ctx context.Context, userID string, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"last_force_logout_at": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("force logout: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}
