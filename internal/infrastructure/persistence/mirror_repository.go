package persistence

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/persistence/models"
)

const upsertBatchSize = 100

var mirrorKey = []clause.Column{{Name: "organization_id"}, {Name: "remote_id"}}

// mirrorTable is the typed access to one mirror table
type mirrorTable interface {
	model() models.MirrorModel
	take(db *gorm.DB) (*catalogsync.MirrorEntity, error)
	find(db *gorm.DB) ([]*catalogsync.MirrorEntity, error)
	upsert(db *gorm.DB, entities []*catalogsync.MirrorEntity, columns []string) error
	save(db *gorm.DB, entity *catalogsync.MirrorEntity) error
}

type typedTable[T any, PT interface {
	*T
	models.MirrorModel
}] struct{}

func (typedTable[T, PT]) model() models.MirrorModel {
	return PT(new(T))
}

func (typedTable[T, PT]) take(db *gorm.DB) (*catalogsync.MirrorEntity, error) {
	row := PT(new(T))
	if err := db.Take(row).Error; err != nil {
		return nil, err
	}
	return row.ToDomain(), nil
}

func (typedTable[T, PT]) find(db *gorm.DB) ([]*catalogsync.MirrorEntity, error) {
	var rows []T
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*catalogsync.MirrorEntity, len(rows))
	for i := range rows {
		out[i] = PT(&rows[i]).ToDomain()
	}
	return out, nil
}

func (typedTable[T, PT]) upsert(db *gorm.DB, entities []*catalogsync.MirrorEntity, columns []string) error {
	rows := make([]T, len(entities))
	for i, e := range entities {
		PT(&rows[i]).FromDomain(e)
	}
	return db.Clauses(clause.OnConflict{
		Columns:   mirrorKey,
		DoUpdates: clause.AssignmentColumns(columns),
	}).CreateInBatches(&rows, upsertBatchSize).Error
}

func (typedTable[T, PT]) save(db *gorm.DB, entity *catalogsync.MirrorEntity) error {
	row := PT(new(T))
	row.FromDomain(entity)
	return db.Clauses(clause.OnConflict{
		Columns:   mirrorKey,
		UpdateAll: true,
	}).Create(row).Error
}

// GormMirrorRepository implements catalogsync.MirrorRepository with one table per entity type
type GormMirrorRepository struct {
	db     *gorm.DB
	tables map[integration.EntityType]mirrorTable
}

// NewGormMirrorRepository creates a new GormMirrorRepository
func NewGormMirrorRepository(db *gorm.DB) *GormMirrorRepository {
	return &GormMirrorRepository{
		db: db,
		tables: map[integration.EntityType]mirrorTable{
			integration.EntityTypeProducts:  typedTable[models.MirroredProductModel, *models.MirroredProductModel]{},
			integration.EntityTypeCustomers: typedTable[models.MirroredCustomerModel, *models.MirroredCustomerModel]{},
			integration.EntityTypeOrders:    typedTable[models.MirroredOrderModel, *models.MirroredOrderModel]{},
		},
	}
}

func (r *GormMirrorRepository) table(entityType integration.EntityType) (mirrorTable, error) {
	t, ok := r.tables[entityType]
	if !ok {
		return nil, integration.ErrUnknownEntityType
	}
	return t, nil
}

// FindByRemoteID finds one mirrored row
func (r *GormMirrorRepository) FindByRemoteID(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, remoteID int64) (*catalogsync.MirrorEntity, error) {
	t, err := r.table(entityType)
	if err != nil {
		return nil, err
	}
	entity, err := t.take(r.db.WithContext(ctx).
		Scopes(OrganizationScope(orgID)).
		Where("remote_id = ?", remoteID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalogsync.ErrMirrorEntityNotFound
		}
		return nil, storeError("find mirror row", err)
	}
	return entity, nil
}

// List returns a filtered page of rows ordered by remote id, provisional rows first
func (r *GormMirrorRepository) List(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, filter catalogsync.MirrorFilter) ([]*catalogsync.MirrorEntity, int64, error) {
	t, err := r.table(entityType)
	if err != nil {
		return nil, 0, err
	}
	m := t.model()

	query := r.db.WithContext(ctx).Model(m).Scopes(OrganizationScope(orgID)).Session(&gorm.Session{})
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		conds := make([]string, 0, len(m.SearchColumns()))
		args := make([]any, 0, len(m.SearchColumns()))
		for _, col := range m.SearchColumns() {
			conds = append(conds, "LOWER("+col+") LIKE ?")
			args = append(args, pattern)
		}
		query = query.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
	if filter.Status != "" && slices.Contains(m.SummaryColumns(), "status") {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Dirty != nil {
		if *filter.Dirty {
			query = query.Where(dirtyCondition)
		} else {
			query = query.Not(dirtyCondition)
		}
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, storeError("count mirror rows", err)
	}

	entities, err := t.find(query.Scopes(Paginate(filter.Page, filter.PageSize)).Order("remote_id ASC"))
	if err != nil {
		return nil, 0, storeError("list mirror rows", err)
	}
	return entities, total, nil
}

const dirtyCondition = "local_modified_at IS NOT NULL AND (synced_at IS NULL OR local_modified_at > synced_at)"

type localIndexRow struct {
	RemoteID         int64
	LastModified     time.Time
	SyncedAt         *time.Time
	LocalModifiedAt  *time.Time
	DeletedLocallyAt *time.Time
}

// LocalIndex returns the discovery view of every row of the organization
func (r *GormMirrorRepository) LocalIndex(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) ([]catalogsync.LocalIndexEntry, error) {
	t, err := r.table(entityType)
	if err != nil {
		return nil, err
	}
	var rows []localIndexRow
	if err := r.db.WithContext(ctx).
		Model(t.model()).
		Scopes(OrganizationScope(orgID)).
		Select("remote_id", "last_modified", "synced_at", "local_modified_at", "deleted_locally_at").
		Order("remote_id ASC").
		Scan(&rows).Error; err != nil {
		return nil, storeError("load local index", err)
	}

	index := make([]catalogsync.LocalIndexEntry, len(rows))
	for i, row := range rows {
		e := catalogsync.MirrorEntity{
			RemoteID:         row.RemoteID,
			LastModified:     row.LastModified.UTC(),
			SyncedAt:         row.SyncedAt,
			LocalModifiedAt:  row.LocalModifiedAt,
			DeletedLocallyAt: row.DeletedLocallyAt,
		}
		index[i] = e.IndexEntry()
	}
	return index, nil
}

// Upsert writes pulled rows, grouped by entity type
func (r *GormMirrorRepository) Upsert(ctx context.Context, entities ...*catalogsync.MirrorEntity) error {
	if len(entities) == 0 {
		return nil
	}
	grouped := make(map[integration.EntityType][]*catalogsync.MirrorEntity)
	for _, e := range entities {
		grouped[e.EntityType] = append(grouped[e.EntityType], e)
	}
	db := r.db.WithContext(ctx)
	for _, et := range integration.AllEntityTypes() {
		batch := grouped[et]
		if len(batch) == 0 {
			continue
		}
		t, _ := r.table(et)
		columns := append(slices.Clone(models.MirrorSyncColumns), t.model().SummaryColumns()...)
		if err := t.upsert(db, batch, columns); err != nil {
			return storeError("upsert mirror rows", err)
		}
		delete(grouped, et)
	}
	if len(grouped) > 0 {
		return integration.ErrUnknownEntityType
	}
	return nil
}

// Save writes every column of one row
func (r *GormMirrorRepository) Save(ctx context.Context, entity *catalogsync.MirrorEntity) error {
	t, err := r.table(entity.EntityType)
	if err != nil {
		return err
	}
	if err := t.save(r.db.WithContext(ctx), entity); err != nil {
		return storeError("save mirror row", err)
	}
	return nil
}

// ReassignRemoteID moves a provisional row to the id assigned by the remote
func (r *GormMirrorRepository) ReassignRemoteID(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, fromID, toID int64) error {
	t, err := r.table(entityType)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(t.model()).
		Scopes(OrganizationScope(orgID)).
		Where("remote_id = ?", fromID).
		Updates(map[string]any{"remote_id": toID, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return storeError("reassign remote id", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalogsync.ErrMirrorEntityNotFound
	}
	return nil
}

// Delete removes a row. Deleting a missing row is not an error.
func (r *GormMirrorRepository) Delete(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, remoteID int64) error {
	t, err := r.table(entityType)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).
		Scopes(OrganizationScope(orgID)).
		Where("remote_id = ?", remoteID).
		Delete(t.model()).Error; err != nil {
		return storeError("delete mirror row", err)
	}
	return nil
}

// NextProvisionalID returns one below the lowest provisional id in use, or -1
func (r *GormMirrorRepository) NextProvisionalID(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (int64, error) {
	t, err := r.table(entityType)
	if err != nil {
		return 0, err
	}
	var lowest sql.NullInt64
	if err := r.db.WithContext(ctx).
		Model(t.model()).
		Scopes(OrganizationScope(orgID)).
		Where("remote_id < 0").
		Select("MIN(remote_id)").
		Row().Scan(&lowest); err != nil {
		return 0, storeError("next provisional id", err)
	}
	if !lowest.Valid {
		return -1, nil
	}
	return lowest.Int64 - 1, nil
}

var _ catalogsync.MirrorRepository = (*GormMirrorRepository)(nil)
