package domain

import "time"

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectSuspended ProjectStatus = "SUSPENDED"
	ProjectClosed    ProjectStatus = "CLOSED"
)

// Project 资金需求所属项目
type Project struct {
	ID             uint64        `gorm:"column:id;primaryKey" json:"id" yaml:"id"`
	OrganizationID uint64        `gorm:"column:organization_id;index;not null" json:"organization_id" yaml:"organization_id"`
	Name           string        `gorm:"column:name;type:varchar(128);not null" json:"name" yaml:"name"`
	Status         ProjectStatus `gorm:"column:status;type:varchar(16);not null;default:'ACTIVE'" json:"status" yaml:"status"`
	UpdatedAt      time.Time     `gorm:"column:updated_at" json:"updated_at" yaml:"-"`
}

func (Project) TableName() string {
	return "projects"
}

// FundNeedLine 资金需求行（外部参考数据，只停用不删除）
type FundNeedLine struct {
	ID             uint64    `gorm:"column:id;primaryKey" json:"id" yaml:"id"`
	OrganizationID uint64    `gorm:"column:organization_id;index;not null" json:"organization_id" yaml:"organization_id"`
	DepartmentID   uint64    `gorm:"column:department_id;not null" json:"department_id" yaml:"department_id"`
	ProjectID      uint64    `gorm:"column:project_id;index;not null" json:"project_id" yaml:"project_id"`
	SubProjectID   uint64    `gorm:"column:sub_project_id;not null" json:"sub_project_id" yaml:"sub_project_id"`
	FundTypeID     uint64    `gorm:"column:fund_type_id;not null" json:"fund_type_id" yaml:"fund_type_id"`
	Name           string    `gorm:"column:name;type:varchar(128)" json:"name" yaml:"name"`
	Active         bool      `gorm:"column:active;not null" json:"active" yaml:"active"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at" yaml:"-"`
}

func (FundNeedLine) TableName() string {
	return "fund_need_lines"
}

// ActiveLine 需求行及其项目状态
type ActiveLine struct {
	Line          FundNeedLine
	ProjectStatus ProjectStatus
}

// Countable 计入进度统计：需求行启用且所属项目为 ACTIVE
func (a ActiveLine) Countable() bool {
	return a.Line.Active && a.ProjectStatus == ProjectActive
}
