package registry

import "time"

// CommandTemplate is the catalog row describing a dispatchable command:
// where it routes by default and which tenant modules must be enabled.
type CommandTemplate struct {
	CommandName     string   `gorm:"type:varchar(100);primary_key"`
	TargetService   string   `gorm:"type:varchar(100);not null"`
	Topic           string   `gorm:"type:varchar(128);not null"`
	RequiredModules []string `gorm:"type:jsonb;serializer:json"`
	AggregateType   string   `gorm:"type:varchar(50);not null"`
	PayloadSchema   []byte   `gorm:"type:jsonb"`
	UpdatedAt       time.Time
}

// TableName returns the database table name
func (CommandTemplate) TableName() string {
	return "command_templates"
}

// RouteOverride redirects a command to a different service/topic for one tenant.
type RouteOverride struct {
	TenantID      string `gorm:"type:varchar(64);primary_key"`
	CommandName   string `gorm:"type:varchar(100);primary_key"`
	TargetService string `gorm:"type:varchar(100);not null"`
	Topic         string `gorm:"type:varchar(128);not null"`
	UpdatedAt     time.Time
}

// TableName returns the database table name
func (RouteOverride) TableName() string {
	return "command_routes"
}

// FeatureFlag records tenant module enablement.
type FeatureFlag struct {
	TenantID  string `gorm:"type:varchar(64);primary_key"`
	Module    string `gorm:"type:varchar(50);primary_key"`
	Enabled   bool   `gorm:"not null;default:false"`
	UpdatedAt time.Time
}

// TableName returns the database table name
func (FeatureFlag) TableName() string {
	return "tenant_features"
}
