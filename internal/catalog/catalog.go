// Package catalog 气味目录：气味名称到设备通道（location）的映射
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// 通道范围
const (
	MinLocation = 1
	MaxLocation = 12
)

var (
	// ErrDuplicateLocation 两个气味占用同一通道
	ErrDuplicateLocation = errors.New("catalog: duplicate location")
	// ErrLocationRange 通道超出 1-12
	ErrLocationRange = errors.New("catalog: location out of range")
	// ErrUnknownScent 目录中不存在该气味
	ErrUnknownScent = errors.New("catalog: unknown scent")
)

// Scent 目录条目
type Scent struct {
	Name        string   `yaml:"-" json:"name"`
	Location    int      `yaml:"location" json:"location"`
	Family      string   `yaml:"family,omitempty" json:"family,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Notes       []string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

type file struct {
	Scents map[string]Scent `yaml:"scents"`
}

// Catalog 只读目录，加载后不再修改
type Catalog struct {
	byName map[string]Scent // key: 小写名称
	list   []Scent          // 按通道排序
}

// Load 读取 YAML 目录文件
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse 解析并校验：通道范围、通道唯一、名称唯一（大小写不敏感）
func Parse(b []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}

	c := &Catalog{byName: make(map[string]Scent, len(f.Scents))}
	owner := make(map[int]string, len(f.Scents))
	for name, s := range f.Scents {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("catalog: empty scent name")
		}
		s.Name = name
		if s.Location < MinLocation || s.Location > MaxLocation {
			return nil, fmt.Errorf("%w: %q has location %d", ErrLocationRange, name, s.Location)
		}
		if prev, ok := owner[s.Location]; ok {
			return nil, fmt.Errorf("%w: %d used by %q and %q", ErrDuplicateLocation, s.Location, prev, name)
		}
		key := strings.ToLower(name)
		if _, ok := c.byName[key]; ok {
			return nil, fmt.Errorf("catalog: duplicate scent name %q", name)
		}
		owner[s.Location] = name
		c.byName[key] = s
		c.list = append(c.list, s)
	}
	sort.Slice(c.list, func(i, j int) bool { return c.list[i].Location < c.list[j].Location })
	return c, nil
}

// Empty 空目录
func Empty() *Catalog {
	return &Catalog{byName: map[string]Scent{}}
}

// Lookup 按名称查找（大小写不敏感）
func (c *Catalog) Lookup(name string) (Scent, error) {
	if c != nil {
		if s, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]; ok {
			return s, nil
		}
	}
	return Scent{}, fmt.Errorf("%w: %q", ErrUnknownScent, name)
}

// List 按通道顺序返回全部条目
func (c *Catalog) List() []Scent {
	if c == nil {
		return nil
	}
	out := make([]Scent, len(c.list))
	copy(out, c.list)
	return out
}

// Len 条目数
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.list)
}
