// Package seed 从 YAML 文件导入项目与资金需求行
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"gopkg.in/yaml.v3"
)

// Catalog YAML 文件结构
//
//	projects:
//	  - {id: 1, organization_id: 10, name: Bridge, status: ACTIVE}
//	lines:
//	  - {id: 100, organization_id: 10, project_id: 1, department_id: 3, sub_project_id: 4, fund_type_id: 2, active: true}
type Catalog struct {
	Projects []domain.Project      `yaml:"projects"`
	Lines    []domain.FundNeedLine `yaml:"lines"`
}

// Parse 解析并校验目录
func Parse(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseFile 读取文件
func ParseFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Validate ID 非零且唯一；未填写的项目状态视为 ACTIVE
func (c *Catalog) Validate() error {
	projects := make(map[uint64]struct{}, len(c.Projects))
	for i := range c.Projects {
		p := &c.Projects[i]
		if p.ID == 0 {
			return domain.Validationf("project #%d has no id", i+1)
		}
		if _, dup := projects[p.ID]; dup {
			return domain.Validationf("duplicate project id %d", p.ID)
		}
		projects[p.ID] = struct{}{}
		if p.Status == "" {
			p.Status = domain.ProjectActive
		}
		switch p.Status {
		case domain.ProjectActive, domain.ProjectSuspended, domain.ProjectClosed:
		default:
			return domain.Validationf("project %d has unknown status %q", p.ID, p.Status)
		}
	}
	lines := make(map[uint64]struct{}, len(c.Lines))
	for i, l := range c.Lines {
		if l.ID == 0 || l.OrganizationID == 0 || l.ProjectID == 0 {
			return domain.Validationf("line #%d requires id, organization_id and project_id", i+1)
		}
		if _, dup := lines[l.ID]; dup {
			return domain.Validationf("duplicate line id %d", l.ID)
		}
		lines[l.ID] = struct{}{}
	}
	return nil
}

// Load 在一个事务内写入全部项目与需求行，返回写入条数
func Load(ctx context.Context, tx domain.Transactor, repo domain.CatalogRepository, c *Catalog) (projects, lines int, err error) {
	err = tx.Transaction(ctx, func(ctx context.Context) error {
		for i := range c.Projects {
			if err := repo.UpsertProject(ctx, &c.Projects[i]); err != nil {
				return fmt.Errorf("upsert project %d: %w", c.Projects[i].ID, err)
			}
		}
		for i := range c.Lines {
			if err := repo.UpsertLine(ctx, &c.Lines[i]); err != nil {
				return fmt.Errorf("upsert line %d: %w", c.Lines[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return len(c.Projects), len(c.Lines), nil
}
