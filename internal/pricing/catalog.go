package pricing

import (
	"fmt"

	"billpay/internal/config"
	"billpay/internal/model"
)

// Catalog 静态业务目录（服务商与套餐），来自配置文件
type Catalog struct {
	entries []config.CatalogEntry
	index   map[model.ServiceType]map[string][]string
}

func NewCatalog(entries []config.CatalogEntry) *Catalog {
	c := &Catalog{
		entries: entries,
		index:   make(map[model.ServiceType]map[string][]string, len(entries)),
	}
	for _, e := range entries {
		providers := make(map[string][]string, len(e.Providers))
		for _, p := range e.Providers {
			providers[p.Name] = p.Packages
		}
		c.index[model.ServiceType(e.Service)] = providers
	}
	return c
}

func (c *Catalog) Entries() []config.CatalogEntry {
	return c.entries
}

// Check 校验服务商与套餐是否在目录中
// 目录里没有配置该业务时不做限制
func (c *Catalog) Check(service model.ServiceType, provider, packageLabel string) error {
	providers, ok := c.index[service]
	if !ok {
		return nil
	}
	packages, ok := providers[provider]
	if !ok {
		return fmt.Errorf("provider %q is not available for %s", provider, service)
	}
	if packageLabel == "" {
		return nil
	}
	for _, p := range packages {
		if p == packageLabel {
			return nil
		}
	}
	return fmt.Errorf("package %q is not offered by %s", packageLabel, provider)
}
