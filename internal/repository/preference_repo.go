package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cafezinho/discovery/internal/db"
)

// PreferenceRepository provides access to the local key-value store.
type PreferenceRepository struct {
	db *gorm.DB
}

// NewPreferenceRepository creates a new repository bound to the given DB connection.
func NewPreferenceRepository(database *gorm.DB) *PreferenceRepository {
	return &PreferenceRepository{db: database}
}

// Set inserts or overwrites namespace/key.
//
// Behavior:
//   - If (namespace, key) exists → value and updated_at are replaced.
//   - Otherwise a new row is inserted.
func (r *PreferenceRepository) Set(ctx context.Context, namespace, key, value string) error {
	pref := db.Preference{
		Namespace: namespace,
		Key:       key,
		Value:     value,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&pref).Error
}

// Get returns gorm.ErrRecordNotFound when the entry is missing.
func (r *PreferenceRepository) Get(ctx context.Context, namespace, key string) (string, error) {
	var pref db.Preference
	err := r.db.WithContext(ctx).
		Where("namespace = ? AND `key` = ?", namespace, key).
		Take(&pref).Error
	if err != nil {
		return "", err
	}
	return pref.Value, nil
}

// List returns every entry of a namespace keyed by key.
func (r *PreferenceRepository) List(ctx context.Context, namespace string) (map[string]string, error) {
	var prefs []db.Preference
	err := r.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Order("`key` ASC").
		Find(&prefs).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(prefs))
	for _, p := range prefs {
		out[p.Key] = p.Value
	}
	return out, nil
}

// Delete removes one entry; a missing entry is not an error.
func (r *PreferenceRepository) Delete(ctx context.Context, namespace, key string) error {
	return r.db.WithContext(ctx).
		Where("namespace = ? AND `key` = ?", namespace, key).
		Delete(&db.Preference{}).Error
}

// Clear drops a whole namespace.
func (r *PreferenceRepository) Clear(ctx context.Context, namespace string) error {
	return r.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Delete(&db.Preference{}).Error
}
