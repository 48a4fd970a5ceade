package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ovialab/admin-portal/internal/core/domain"
)

const roleCollection = "role_definitions"

type RoleRepository struct {
	coll *mongo.Collection
}

func NewRoleRepository(db *mongo.Database) *RoleRepository {
	return &RoleRepository{coll: db.Collection(roleCollection)}
}

func (r *RoleRepository) FindByRoleID(ctx context.Context, roleID string) (*domain.RoleDefinition, error) {
	var def domain.RoleDefinition
	if err := r.coll.FindOne(ctx, bson.M{"_id": roleID}).Decode(&def); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return &def, nil
}

func (r *RoleRepository) List(ctx context.Context) ([]domain.RoleDefinition, error) {
	cursor, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer cursor.Close(ctx)

	var defs []domain.RoleDefinition
	if err := cursor.All(ctx, &defs); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	return defs, nil
}
