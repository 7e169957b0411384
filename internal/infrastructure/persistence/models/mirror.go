package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// MirrorModel is implemented by the per entity type mirror tables
type MirrorModel interface {
	TableName() string
	EntityType() integration.EntityType
	ToDomain() *catalogsync.MirrorEntity
	FromDomain(e *catalogsync.MirrorEntity)
	// SummaryColumns lists the extracted columns refreshed on every upsert
	SummaryColumns() []string
	// SearchColumns lists the text columns matched by free text search
	SearchColumns() []string
}

// MirrorColumns are shared by every mirror table.
// Rows are keyed by (organization_id, remote_id).
type MirrorColumns struct {
	OrganizationID   uuid.UUID      `gorm:"type:uuid;primaryKey"`
	RemoteID         int64          `gorm:"primaryKey;autoIncrement:false"`
	Payload          datatypes.JSON `gorm:"type:jsonb;not null"`
	LastModified     time.Time      `gorm:"not null"`
	SyncedAt         *time.Time
	LocalModifiedAt  *time.Time `gorm:"index"`
	DeletedLocallyAt *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// MirrorSyncColumns are written by remote upserts. local_modified_at and
// deleted_locally_at are absent so a pull never clears a local mark.
var MirrorSyncColumns = []string{"payload", "last_modified", "synced_at", "updated_at"}

func (c *MirrorColumns) toDomain(et integration.EntityType) *catalogsync.MirrorEntity {
	return &catalogsync.MirrorEntity{
		OrganizationID:   c.OrganizationID,
		EntityType:       et,
		RemoteID:         c.RemoteID,
		Payload:          json.RawMessage(c.Payload),
		LastModified:     c.LastModified.UTC(),
		SyncedAt:         utcPtr(c.SyncedAt),
		LocalModifiedAt:  utcPtr(c.LocalModifiedAt),
		DeletedLocallyAt: utcPtr(c.DeletedLocallyAt),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func (c *MirrorColumns) fromDomain(e *catalogsync.MirrorEntity) {
	c.OrganizationID = e.OrganizationID
	c.RemoteID = e.RemoteID
	c.Payload = datatypes.JSON(e.Payload)
	c.LastModified = e.LastModified.UTC()
	c.SyncedAt = e.SyncedAt
	c.LocalModifiedAt = e.LocalModifiedAt
	c.DeletedLocallyAt = e.DeletedLocallyAt
	c.CreatedAt = e.CreatedAt
	c.UpdatedAt = e.UpdatedAt
}

// MirroredProductModel mirrors remote products, including variations
type MirroredProductModel struct {
	MirrorColumns
	Name          string          `gorm:"type:varchar(255)"`
	SKU           string          `gorm:"column:sku;type:varchar(100);index"`
	ProductType   string          `gorm:"type:varchar(30)"`
	Status        string          `gorm:"type:varchar(30);index"`
	Price         decimal.Decimal `gorm:"type:decimal(18,4)"`
	StockQuantity *int
	ParentID      int64 `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (MirroredProductModel) TableName() string { return "mirrored_products" }

// EntityType implements MirrorModel
func (MirroredProductModel) EntityType() integration.EntityType {
	return integration.EntityTypeProducts
}

// SummaryColumns implements MirrorModel
func (MirroredProductModel) SummaryColumns() []string {
	return []string{"name", "sku", "product_type", "status", "price", "stock_quantity", "parent_id"}
}

// SearchColumns implements MirrorModel
func (MirroredProductModel) SearchColumns() []string { return []string{"name", "sku"} }

// ToDomain converts the row to a mirror entity
func (m *MirroredProductModel) ToDomain() *catalogsync.MirrorEntity {
	e := m.MirrorColumns.toDomain(m.EntityType())
	e.Summary = catalogsync.MirrorSummary{
		Name:          m.Name,
		SKU:           m.SKU,
		Kind:          m.ProductType,
		Status:        m.Status,
		Amount:        m.Price,
		StockQuantity: m.StockQuantity,
		ParentID:      m.ParentID,
	}
	return e
}

// FromDomain populates the row from a mirror entity
func (m *MirroredProductModel) FromDomain(e *catalogsync.MirrorEntity) {
	m.MirrorColumns.fromDomain(e)
	m.Name = e.Summary.Name
	m.SKU = e.Summary.SKU
	m.ProductType = e.Summary.Kind
	m.Status = e.Summary.Status
	m.Price = e.Summary.Amount
	m.StockQuantity = e.Summary.StockQuantity
	m.ParentID = e.Summary.ParentID
}

// MirroredCustomerModel mirrors remote customers
type MirroredCustomerModel struct {
	MirrorColumns
	Name  string `gorm:"type:varchar(255)"`
	Email string `gorm:"type:varchar(255);index"`
}

// TableName returns the table name for GORM
func (MirroredCustomerModel) TableName() string { return "mirrored_customers" }

// EntityType implements MirrorModel
func (MirroredCustomerModel) EntityType() integration.EntityType {
	return integration.EntityTypeCustomers
}

// SummaryColumns implements MirrorModel
func (MirroredCustomerModel) SummaryColumns() []string { return []string{"name", "email"} }

// SearchColumns implements MirrorModel
func (MirroredCustomerModel) SearchColumns() []string { return []string{"name", "email"} }

// ToDomain converts the row to a mirror entity
func (m *MirroredCustomerModel) ToDomain() *catalogsync.MirrorEntity {
	e := m.MirrorColumns.toDomain(m.EntityType())
	e.Summary = catalogsync.MirrorSummary{Name: m.Name, Email: m.Email}
	return e
}

// FromDomain populates the row from a mirror entity
func (m *MirroredCustomerModel) FromDomain(e *catalogsync.MirrorEntity) {
	m.MirrorColumns.fromDomain(e)
	m.Name = e.Summary.Name
	m.Email = e.Summary.Email
}

// MirroredOrderModel mirrors remote orders
type MirroredOrderModel struct {
	MirrorColumns
	Status     string          `gorm:"type:varchar(30);index"`
	Total      decimal.Decimal `gorm:"type:decimal(18,4)"`
	Currency   string          `gorm:"type:varchar(10)"`
	CustomerID int64           `gorm:"not null;default:0;index"`
}

// TableName returns the table name for GORM
func (MirroredOrderModel) TableName() string { return "mirrored_orders" }

// EntityType implements MirrorModel
func (MirroredOrderModel) EntityType() integration.EntityType {
	return integration.EntityTypeOrders
}

// SummaryColumns implements MirrorModel
func (MirroredOrderModel) SummaryColumns() []string {
	return []string{"status", "total", "currency", "customer_id"}
}

// SearchColumns implements MirrorModel
func (MirroredOrderModel) SearchColumns() []string { return []string{"status", "currency"} }

// ToDomain converts the row to a mirror entity
func (m *MirroredOrderModel) ToDomain() *catalogsync.MirrorEntity {
	e := m.MirrorColumns.toDomain(m.EntityType())
	e.Summary = catalogsync.MirrorSummary{
		Status:   m.Status,
		Amount:   m.Total,
		Currency: m.Currency,
		ParentID: m.CustomerID,
	}
	return e
}

// FromDomain populates the row from a mirror entity
func (m *MirroredOrderModel) FromDomain(e *catalogsync.MirrorEntity) {
	m.MirrorColumns.fromDomain(e)
	m.Status = e.Summary.Status
	m.Total = e.Summary.Amount
	m.Currency = e.Summary.Currency
	m.CustomerID = e.Summary.ParentID
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
